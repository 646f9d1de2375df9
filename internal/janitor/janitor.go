// Package janitor periodically sweeps a registry for nodes that have
// stopped announcing, per spec.md §4.5's Janitor component.
package janitor

import (
	"context"
	"time"

	"github.com/stacklok/balancer/internal/metrics"
	"github.com/stacklok/balancer/internal/registry"
	"github.com/stacklok/balancer/pkg/logger"
)

const (
	// DefaultCleanupInterval is the default wake period between sweeps.
	DefaultCleanupInterval = 30 * time.Second
	// DefaultInactivityTimeout is the default staleness threshold.
	DefaultInactivityTimeout = 35 * time.Second
)

// Janitor evicts nodes that have not announced within InactivityTimeout,
// waking every CleanupInterval. Eviction is unconditional on last_seen age;
// a Busy node is not shielded.
type Janitor struct {
	Registry          *registry.Registry
	CleanupInterval   time.Duration
	InactivityTimeout time.Duration
}

// New returns a Janitor with the spec's default interval and timeout.
func New(reg *registry.Registry) *Janitor {
	return &Janitor{
		Registry:          reg,
		CleanupInterval:   DefaultCleanupInterval,
		InactivityTimeout: DefaultInactivityTimeout,
	}
}

// Run wakes every CleanupInterval and evicts stale nodes until ctx is
// cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	evicted := j.Registry.EvictStale(time.Now(), j.InactivityTimeout)
	if len(evicted) == 0 {
		return
	}
	metrics.ObserveEviction(j.Registry.Class(), len(evicted))
	logger.Infow("janitor evicted stale nodes", "class", j.Registry.Class(), "ids", evicted, "count", len(evicted))
}

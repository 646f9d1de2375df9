// Package admission wraps a registry's find-and-occupy primitive with a
// bounded-wait polling loop: it is the Admission/Queue component of
// spec.md §4.3.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/balancer/internal/registry"
)

// ErrNoCapacity is returned when no Available node turned up within
// QueueTimeout. Callers surface it as HTTP 503.
var ErrNoCapacity = errors.New("no capacity")

const (
	// DefaultQueueTimeout is the default bounded wait before ErrNoCapacity.
	DefaultQueueTimeout = 30 * time.Second
	// DefaultPollInterval is the default sleep between FindAndOccupy scans.
	DefaultPollInterval = 200 * time.Millisecond
)

// Queue admits requests onto a single registry's pool of nodes.
type Queue struct {
	Registry     *registry.Registry
	QueueTimeout time.Duration
	PollInterval time.Duration
}

// New returns a Queue with the spec's default timeout and poll interval.
func New(reg *registry.Registry) *Queue {
	return &Queue{
		Registry:     reg,
		QueueTimeout: DefaultQueueTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Admit implements the protocol of spec.md §4.3: it repeatedly calls
// FindAndOccupy until a node is found, the queue timeout elapses (returning
// ErrNoCapacity), or ctx is cancelled (e.g. client disconnect), in which case
// ctx.Err() is returned and no node is left occupied. It never holds the
// registry's lock while sleeping.
func (q *Queue) Admit(ctx context.Context) (id, endpointURL string, err error) {
	deadline := time.Now().Add(q.QueueTimeout)

	for {
		if id, url, ok := q.Registry.FindAndOccupy(); ok {
			return id, url, nil
		}

		if time.Now().After(deadline) {
			return "", "", ErrNoCapacity
		}

		timer := time.NewTimer(q.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", "", ctx.Err()
		case <-timer.C:
		}
	}
}

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/balancer/internal/registry"
)

func TestNew_UsesDefaults(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.ServiceClassLMStudio)
	j := New(reg)
	assert.Equal(t, DefaultCleanupInterval, j.CleanupInterval)
	assert.Equal(t, DefaultInactivityTimeout, j.InactivityTimeout)
}

func TestSweep_EvictsOnlyStaleEntries(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.ServiceClassLMStudio)
	now := time.Now()
	reg.Upsert("old", "http://h/old", now.Add(-time.Hour))
	reg.Upsert("fresh", "http://h/fresh", now)

	j := &Janitor{Registry: reg, CleanupInterval: time.Millisecond, InactivityTimeout: 35 * time.Second}
	j.sweep()

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "fresh", snap[0].ID)
}

// TestRun_EvictsAfterInactivityTimeoutPlusCleanupInterval is property P7 /
// scenario 6 in spec.md §8: a node announced once and never again is gone
// within inactivity_timeout + cleanup_interval.
func TestRun_EvictsAfterInactivityTimeoutPlusCleanupInterval(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.ServiceClassOllama)
	reg.Upsert("n1", "http://h/x", time.Now())

	j := &Janitor{Registry: reg, CleanupInterval: 50 * time.Millisecond, InactivityTimeout: 100 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, 400*time.Millisecond, 10*time.Millisecond)

	<-done
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.ServiceClassOllama)
	j := &Janitor{Registry: reg, CleanupInterval: 10 * time.Millisecond, InactivityTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- j.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

// TestSweep_BusyNotShielded is the janitor-level form of P7's "Busy is not
// a shield" clause.
func TestSweep_BusyNotShielded(t *testing.T) {
	t.Parallel()

	reg := registry.New(registry.ServiceClassLMStudio)
	now := time.Now()
	reg.Upsert("n1", "http://h/x", now.Add(-time.Hour))
	reg.SetHealth("n1", registry.Health{State: registry.Busy})

	j := &Janitor{Registry: reg, CleanupInterval: time.Millisecond, InactivityTimeout: 35 * time.Second}
	j.sweep()

	assert.Empty(t, reg.Snapshot())
}

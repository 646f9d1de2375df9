package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsert_NewRecordIsAvailable(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("n1", "http://10.0.0.5:8000/v1", now)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "n1", snap[0].ID)
	assert.Equal(t, "http://10.0.0.5:8000/v1", snap[0].EndpointURL)
	assert.Equal(t, Available, snap[0].Health.State)
	assert.Equal(t, now, snap[0].LastSeen)
}

func TestUpsert_Idempotent_AdvancesLastSeen(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	t0 := time.Now()
	t1 := t0.Add(time.Second)

	r.Upsert("n1", "http://h/x", t0)
	r.Upsert("n1", "http://h/x", t1)

	snap := r.Snapshot()
	require.Len(t, snap, 1, "a repeated announcement must not create a second record")
	assert.Equal(t, t1, snap[0].LastSeen)
}

func TestUpsert_ExistingBusyRecord_KeepsBusy(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("n1", "http://h/x", now)

	_, _, ok := r.FindAndOccupy()
	require.True(t, ok)

	later := now.Add(time.Second)
	r.Upsert("n1", "http://h/x", later)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Busy, snap[0].Health.State, "re-announcement must not revive a Busy node")
	assert.Equal(t, later, snap[0].LastSeen, "last_seen still advances on re-announcement")
}

func TestUpsert_ExistingFailedRecord_ResetsToAvailable(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("n1", "http://h/x", now)
	r.SetHealth("n1", Health{State: Failed, FailedSince: now})

	r.Upsert("n1", "http://h/x", now.Add(time.Second))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Available, snap[0].Health.State)
}

func TestFindAndOccupy_EmptyRegistry_ReturnsFalse(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	_, _, ok := r.FindAndOccupy()
	assert.False(t, ok)
}

func TestFindAndOccupy_NoAvailableEntries_ReturnsFalse(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	r.Upsert("n1", "http://h/x", time.Now())
	r.SetHealth("n1", Health{State: Busy})

	_, _, ok := r.FindAndOccupy()
	assert.False(t, ok)
}

func TestFindAndOccupy_MarksBusyAndReturnsIdentity(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	r.Upsert("n1", "http://h/x", time.Now())

	id, url, ok := r.FindAndOccupy()
	require.True(t, ok)
	assert.Equal(t, "n1", id)
	assert.Equal(t, "http://h/x", url)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Busy, snap[0].Health.State)
}

// TestFindAndOccupy_MutualExclusion is property P1: across many concurrent
// callers against a small fixed pool, the number of simultaneously Busy
// entries never exceeds the pool size, and no id is ever returned twice
// while still held.
func TestFindAndOccupy_MutualExclusion(t *testing.T) {
	t.Parallel()

	const nodes = 4
	const callers = 200

	r := New(ServiceClassLMStudio)
	now := time.Now()
	for i := 0; i < nodes; i++ {
		r.Upsert(string(rune('a'+i)), "http://h/"+string(rune('a'+i)), now)
	}

	var (
		mu      sync.Mutex
		held    = map[string]bool{}
		wg      sync.WaitGroup
		busy    int
		maxBusy int
	)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			id, _, ok := r.FindAndOccupy()
			if !ok {
				return
			}
			mu.Lock()
			require.Falsef(t, held[id], "id %s occupied twice simultaneously", id)
			held[id] = true
			busy++
			if busy > maxBusy {
				maxBusy = busy
			}
			mu.Unlock()

			// Clear the bookkeeping before releasing the node, so a caller that
			// occupies it right after the release never sees it still held.
			mu.Lock()
			held[id] = false
			busy--
			mu.Unlock()

			r.SetHealth(id, Health{State: Available})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxBusy, nodes)
}

func TestSetHealth_AbsentID_NoOp(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	assert.NotPanics(t, func() {
		r.SetHealth("ghost", Health{State: Failed})
	})
	assert.Empty(t, r.Snapshot())
}

func TestEvictStale_RemovesOnlyPastThreshold(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("old", "http://h/old", now.Add(-time.Hour))
	r.Upsert("fresh", "http://h/fresh", now)

	evicted := r.EvictStale(now, 35*time.Second)
	assert.Equal(t, []string{"old"}, evicted)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "fresh", snap[0].ID)
}

func TestEvictStale_BusyIsNotShielded(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("n1", "http://h/x", now.Add(-time.Hour))
	r.SetHealth("n1", Health{State: Busy})

	evicted := r.EvictStale(now, 35*time.Second)
	assert.Equal(t, []string{"n1"}, evicted)
	assert.Empty(t, r.Snapshot())
}

func TestEvictStale_ThenFreshDiscovery_CreatesNewRecord(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassLMStudio)
	now := time.Now()
	r.Upsert("n1", "http://h/old", now.Add(-time.Hour))
	r.SetHealth("n1", Health{State: Busy})
	r.EvictStale(now, 35*time.Second)

	r.Upsert("n1", "http://h/new", now)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Available, snap[0].Health.State, "post-eviction discovery must not revive old state")
	assert.Equal(t, "http://h/new", snap[0].EndpointURL)
}

func TestLen(t *testing.T) {
	t.Parallel()

	r := New(ServiceClassOllama)
	assert.Equal(t, 0, r.Len())
	r.Upsert("n1", "http://h/x", time.Now())
	assert.Equal(t, 1, r.Len())
}

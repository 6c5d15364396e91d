package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
)

func nearbyNotes() []domain.Note {
	return []domain.Note{
		{ID: "far", Location: southOf(bilbao, 400)},
		{ID: "a", Location: southOf(bilbao, 30)},
		{ID: "b", Location: southOf(bilbao, 60)},
	}
}

func newTestNotifier(store *mockStore, disp *mockDispatcher, clock clockwork.Clock) *usecases.ProximityNotifier {
	return usecases.NewProximityNotifier(store, disp, usecases.WithNotifierClock(clock))
}

func TestProximityNotifier_CooldownBetweenNotes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newMockStore()
	disp := &mockDispatcher{}
	n := newTestNotifier(store, disp, clock)

	cooldown := 60 * time.Second
	here := fixAt(bilbao)

	intents := n.Evaluate(ctx, "u1", nearbyNotes(), here, 100, cooldown)
	require.Len(t, intents, 1)
	assert.Equal(t, "a", intents[0].NoteID, "closest note fires first")
	assert.Equal(t, "A ghost note is nearby", intents[0].Title)
	assert.Contains(t, intents[0].Body, "30m")

	// b is in range but the cooldown window is still open
	clock.Advance(30 * time.Second)
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), here, 100, cooldown))

	clock.Advance(30 * time.Second)
	intents = n.Evaluate(ctx, "u1", nearbyNotes(), here, 100, cooldown)
	require.Len(t, intents, 1)
	assert.Equal(t, "b", intents[0].NoteID)

	// everything in range has been notified
	clock.Advance(time.Hour)
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), here, 100, cooldown))

	n.Wait()
	assert.Equal(t, 2, disp.count())
}

func TestProximityNotifier_ZeroCooldownFiresAllInRange(t *testing.T) {
	n := newTestNotifier(newMockStore(), &mockDispatcher{}, clockwork.NewFakeClock())

	intents := n.Evaluate(context.Background(), "u1", nearbyNotes(), fixAt(bilbao), 100, 0)
	require.Len(t, intents, 2)
	assert.Equal(t, "a", intents[0].NoteID)
	assert.Equal(t, "b", intents[1].NoteID)
	n.Wait()
}

func TestProximityNotifier_PersistedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newMockStore()
	notes := []domain.Note{{ID: "a", Location: southOf(bilbao, 10)}}

	first := newTestNotifier(store, &mockDispatcher{}, clock)
	require.Len(t, first.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, time.Minute), 1)
	first.Wait()

	set, ok := store.stored("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, set.NoteIDs)
	assert.Equal(t, clock.Now(), set.LastNotifiedAt)

	// a fresh instance (app restart) reads the history back
	clock.Advance(time.Hour)
	second := newTestNotifier(store, &mockDispatcher{}, clock)
	assert.Empty(t, second.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, time.Minute))

	// another user is independent
	assert.Len(t, second.Evaluate(ctx, "u2", notes, fixAt(bilbao), 100, time.Minute), 1)
	second.Wait()
}

func TestProximityNotifier_DispatcherUnavailable(t *testing.T) {
	store := newMockStore()
	disp := &mockDispatcher{unavailable: true}
	n := newTestNotifier(store, disp, clockwork.NewFakeClock())

	assert.Empty(t, n.Evaluate(context.Background(), "u1", nearbyNotes(), fixAt(bilbao), 100, 0))
	_, ok := store.stored("u1")
	assert.False(t, ok, "nothing marked while notifications are unavailable")

	disp.unavailable = false
	assert.Len(t, n.Evaluate(context.Background(), "u1", nearbyNotes(), fixAt(bilbao), 100, 0), 2)
	n.Wait()
}

func TestProximityNotifier_NilDispatcher(t *testing.T) {
	n := usecases.NewProximityNotifier(newMockStore(), nil)
	assert.Empty(t, n.Evaluate(context.Background(), "u1", nearbyNotes(), fixAt(bilbao), 100, 0))
}

func TestProximityNotifier_InvalidLocation(t *testing.T) {
	disp := &mockDispatcher{}
	n := newTestNotifier(newMockStore(), disp, clockwork.NewFakeClock())
	ctx := context.Background()

	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), domain.LocationFix{Available: false}, 100, 0))
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(domain.Coordinate{Lat: 95}), 100, 0))
	assert.Empty(t, n.Evaluate(ctx, "", nearbyNotes(), fixAt(bilbao), 100, 0))
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), -1, 0))
	n.Wait()
	assert.Zero(t, disp.count())
}

func TestProximityNotifier_ReadFailureFailsOpen(t *testing.T) {
	store := newMockStore()
	store.sets["u1"] = domain.NotifiedSet{NoteIDs: []string{"a"}}
	store.getErr = errors.New("valkey down")

	var mu sync.Mutex
	var ops []string
	n := usecases.NewProximityNotifier(store, &mockDispatcher{},
		usecases.WithNotifierClock(clockwork.NewFakeClock()),
		usecases.WithStoreErrorObserver(func(op string) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		}))

	// history unreadable: treated as empty, so "a" may fire again
	intents := n.Evaluate(context.Background(), "u1", nearbyNotes(), fixAt(bilbao), 100, 0)
	require.Len(t, intents, 2)
	assert.Equal(t, []string{"get"}, ops)
	n.Wait()
}

func TestProximityNotifier_WriteFailureKeepsMemoryState(t *testing.T) {
	store := newMockStore()
	store.setErr = errors.New("read-only replica")
	n := newTestNotifier(store, &mockDispatcher{}, clockwork.NewFakeClock())
	ctx := context.Background()

	require.Len(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, 0), 2)
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, 0))
	assert.Equal(t, 2, store.setHits, "write attempted after every mark")
	n.Wait()
}

func TestProximityNotifier_DispatchFailureIsSwallowed(t *testing.T) {
	disp := &mockDispatcher{err: errors.New("relay offline")}
	results := make(chan string, 4)
	n := usecases.NewProximityNotifier(newMockStore(), disp,
		usecases.WithNotifierClock(clockwork.NewFakeClock()),
		usecases.WithDispatchObserver(func(r string) { results <- r }))

	intents := n.Evaluate(context.Background(), "u1", nearbyNotes()[:2], fixAt(bilbao), 100, time.Minute)
	require.Len(t, intents, 1)
	n.Wait()
	assert.Equal(t, usecases.DispatchFailed, <-results)
}

func TestProximityNotifier_DispatchOutlivesCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	disp := &mockDispatcher{}
	n := newTestNotifier(newMockStore(), disp, clockwork.NewFakeClock())

	require.Len(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, time.Minute), 1)
	cancel()
	n.Wait()
	assert.Equal(t, 1, disp.count())
}

func TestProximityNotifier_ConcurrentSameUser(t *testing.T) {
	disp := &mockDispatcher{}
	n := newTestNotifier(newMockStore(), disp, clockwork.NewFakeClock())
	notes := []domain.Note{{ID: "a", Location: southOf(bilbao, 10)}}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := n.Evaluate(context.Background(), "u1", notes, fixAt(bilbao), 100, 0)
			mu.Lock()
			fired += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()
	n.Wait()

	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, disp.count())
}

func TestProximityNotifier_Prune(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newMockStore()
	n := newTestNotifier(store, &mockDispatcher{}, clock)
	notes := []domain.Note{{ID: "a", Location: southOf(bilbao, 10)}}

	n.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, 0)
	clock.Advance(20 * time.Minute)
	n.Evaluate(ctx, "u2", notes, fixAt(bilbao), 100, 0)
	require.Equal(t, 2, n.Tracked())

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, n.Prune(30*time.Minute))
	assert.Equal(t, 1, n.Tracked())

	// pruned history is reloaded from the store, so no duplicate
	hits := store.getHits
	assert.Empty(t, n.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, 0))
	assert.Equal(t, hits+1, store.getHits)
	n.Wait()
}

func TestProximityNotifier_SharedStoreAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newMockStore()
	api := newTestNotifier(store, &mockDispatcher{}, clock)
	worker := newTestNotifier(store, &mockDispatcher{}, clock)
	notes := []domain.Note{{ID: "a", Location: southOf(bilbao, 20)}}

	// api sees the user first while nothing is in range
	assert.Empty(t, api.Evaluate(ctx, "u1", notes, fixAt(southOf(bilbao, 1000)), 100, 0))

	require.Len(t, worker.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, 0), 1)
	assert.Empty(t, api.Evaluate(ctx, "u1", notes, fixAt(bilbao), 100, 0), "mark made by the other process is honored")

	api.Wait()
	worker.Wait()
}

func TestProximityNotifier_SharedCooldownAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := newMockStore()
	api := newTestNotifier(store, &mockDispatcher{}, clock)
	worker := newTestNotifier(store, &mockDispatcher{}, clock)
	cooldown := time.Minute

	assert.Empty(t, api.Evaluate(ctx, "u1", nil, fixAt(bilbao), 100, cooldown))
	require.Len(t, worker.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, cooldown), 1)

	clock.Advance(10 * time.Second)
	assert.Empty(t, api.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, cooldown), "cooldown started by the other process")

	clock.Advance(cooldown)
	intents := api.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, cooldown)
	require.Len(t, intents, 1)
	assert.Equal(t, "b", intents[0].NoteID)

	api.Wait()
	worker.Wait()
}

func TestProximityNotifier_ReadFailureUsesLocalHistory(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	n := newTestNotifier(store, &mockDispatcher{}, clockwork.NewFakeClock())

	require.Len(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, 0), 2)

	store.mu.Lock()
	store.getErr = errors.New("valkey down")
	store.mu.Unlock()
	assert.Empty(t, n.Evaluate(ctx, "u1", nearbyNotes(), fixAt(bilbao), 100, 0))
	n.Wait()
}

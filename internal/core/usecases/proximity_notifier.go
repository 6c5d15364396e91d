package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

const (
	DefaultProximityRadiusM = 100.0
	DefaultCooldown         = 60 * time.Second
	DefaultDispatchTimeout  = 5 * time.Second

	notificationTitle = "A ghost note is nearby"
)

// Dispatch outcomes reported to the observer.
const (
	DispatchSent   = "sent"
	DispatchFailed = "failed"
)

// NotifierOption customizes a ProximityNotifier.
type NotifierOption func(*ProximityNotifier)

// WithNotifierClock sets the clock used for cooldown accounting.
func WithNotifierClock(clock clockwork.Clock) NotifierOption {
	return func(n *ProximityNotifier) { n.clock = clock }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *ProximityNotifier) { n.log = l }
}

// WithDispatchTimeout bounds each background dispatch.
func WithDispatchTimeout(d time.Duration) NotifierOption {
	return func(n *ProximityNotifier) {
		if d > 0 {
			n.dispatchTimeout = d
		}
	}
}

// WithDispatchObserver is called with DispatchSent or DispatchFailed after every dispatch.
func WithDispatchObserver(fn func(result string)) NotifierOption {
	return func(n *ProximityNotifier) { n.onDispatch = fn }
}

// WithStoreErrorObserver is called with "get" or "set" when the history store fails.
func WithStoreErrorObserver(fn func(op string)) NotifierOption {
	return func(n *ProximityNotifier) { n.onStoreError = fn }
}

// ProximityNotifier decides when a user should be told that an unseen note is
// close by. Each note notifies a user at most once, and a user receives at most
// one notification per cooldown window.
type ProximityNotifier struct {
	store      ports.NotifiedSetStore
	dispatcher ports.NotificationDispatcher

	clock           clockwork.Clock
	log             *slog.Logger
	dispatchTimeout time.Duration
	onDispatch      func(result string)
	onStoreError    func(op string)

	mu    sync.Mutex
	users map[string]*userHistory

	inflight sync.WaitGroup
}

type userHistory struct {
	mu       sync.Mutex
	set      *domain.NotifiedSet
	lastSeen time.Time
	evicted  bool
}

// NewProximityNotifier creates a notifier backed by store and dispatcher.
func NewProximityNotifier(store ports.NotifiedSetStore, dispatcher ports.NotificationDispatcher, opts ...NotifierOption) *ProximityNotifier {
	n := &ProximityNotifier{
		store:           store,
		dispatcher:      dispatcher,
		clock:           clockwork.NewRealClock(),
		log:             slog.Default(),
		dispatchTimeout: DefaultDispatchTimeout,
		users:           make(map[string]*userHistory),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

type candidate struct {
	note     domain.Note
	distance float64
}

// Evaluate checks notes against the user's position and returns the
// notifications that fired. Fired intents are already recorded and handed to
// the dispatcher in the background by the time Evaluate returns.
//
// An unknown location, an unavailable dispatcher or an empty user id yield no
// intents and leave the history untouched.
func (n *ProximityNotifier) Evaluate(
	ctx context.Context,
	userID string,
	notes []domain.Note,
	fix domain.LocationFix,
	radiusM float64,
	cooldown time.Duration,
) []domain.NotificationIntent {
	if userID == "" || !fix.Available || !fix.Coordinate.Valid() {
		return nil
	}
	if !geospatial.Finite(radiusM) || radiusM < 0 {
		return nil
	}
	if n.dispatcher == nil || !n.dispatcher.Available() {
		return nil
	}

	h := n.lockUser(ctx, userID)
	defer h.mu.Unlock()

	now := n.clock.Now()
	h.lastSeen = now

	seen := h.set.Index()
	var inRange []candidate
	for _, note := range notes {
		if _, done := seen[note.ID]; done || note.ID == "" {
			continue
		}
		d := geospatial.DistanceMeters(fix.Coordinate, note.Location)
		if !geospatial.Finite(d) || d > radiusM {
			continue
		}
		seen[note.ID] = struct{}{}
		inRange = append(inRange, candidate{note: note, distance: d})
	}
	if len(inRange) == 0 {
		return nil
	}
	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].distance < inRange[j].distance })

	var intents []domain.NotificationIntent
	for _, c := range inRange {
		if !h.set.LastNotifiedAt.IsZero() && now.Sub(h.set.LastNotifiedAt) < cooldown {
			break
		}

		intent := domain.NotificationIntent{
			NoteID: c.note.ID,
			Title:  notificationTitle,
			Body:   fmt.Sprintf("Someone left a note %dm away. Walk closer to reveal it.", int(math.Round(c.distance))),
		}
		h.set.Mark(c.note.ID, now)
		n.persist(ctx, userID, h.set)
		intents = append(intents, intent)
		n.dispatch(ctx, userID, intent)
	}
	return intents
}

// lockUser returns the user's history with its mutex held. The stored set is
// re-read on every call so marks made by other processes sharing the store are
// seen; it is merged with the in-memory copy, which keeps marks whose write
// failed and stands in for the store when the read fails.
func (n *ProximityNotifier) lockUser(ctx context.Context, userID string) *userHistory {
	for {
		n.mu.Lock()
		h, ok := n.users[userID]
		if !ok {
			h = &userHistory{}
			n.users[userID] = h
		}
		n.mu.Unlock()

		h.mu.Lock()
		if h.evicted {
			h.mu.Unlock()
			continue
		}
		h.set = n.load(ctx, userID, h.set)
		return h
	}
}

func (n *ProximityNotifier) load(ctx context.Context, userID string, cached *domain.NotifiedSet) *domain.NotifiedSet {
	merged := cached.Clone()
	if n.store == nil {
		return merged
	}
	set, err := n.store.Get(ctx, userID)
	if err != nil {
		n.log.Warn("notified set unreadable, using local history", "user_id", userID, "cached", cached != nil, "error", err)
		n.storeError("get")
		return merged
	}
	merged.Merge(set)
	return merged
}

func (n *ProximityNotifier) persist(ctx context.Context, userID string, set *domain.NotifiedSet) {
	if n.store == nil {
		return
	}
	if err := n.store.Set(ctx, userID, set.Clone()); err != nil {
		n.log.Error("failed to persist notified set", "user_id", userID, "error", err)
		n.storeError("set")
	}
}

func (n *ProximityNotifier) dispatch(ctx context.Context, userID string, intent domain.NotificationIntent) {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.dispatchTimeout)
		defer cancel()

		result := DispatchSent
		if err := n.dispatcher.Dispatch(dctx, userID, intent); err != nil {
			n.log.Warn("notification dispatch failed", "user_id", userID, "note_id", intent.NoteID, "error", err)
			result = DispatchFailed
		}
		if n.onDispatch != nil {
			n.onDispatch(result)
		}
	}()
}

func (n *ProximityNotifier) storeError(op string) {
	if n.onStoreError != nil {
		n.onStoreError(op)
	}
}

// Wait blocks until all background dispatches have finished.
func (n *ProximityNotifier) Wait() {
	n.inflight.Wait()
}

// Prune drops the lock and local copy of users not seen within idle. Users
// being evaluated right now are skipped. Returns the number of users dropped.
func (n *ProximityNotifier) Prune(idle time.Duration) int {
	now := n.clock.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	pruned := 0
	for id, h := range n.users {
		if !h.mu.TryLock() {
			continue
		}
		if now.Sub(h.lastSeen) >= idle {
			h.evicted = true
			delete(n.users, id)
			pruned++
		}
		h.mu.Unlock()
	}
	return pruned
}

// Tracked returns the number of users with in-memory history.
func (n *ProximityNotifier) Tracked() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.users)
}

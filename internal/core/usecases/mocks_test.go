package usecases_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

// --- Mock NoteRepository ---

type mockNoteRepo struct {
	mu    sync.Mutex
	notes map[string]domain.Note

	findNearbyFn func(ctx context.Context, center domain.Coordinate, radius float64, limit int) ([]domain.NearbyNote, error)
	getByIDFn    func(ctx context.Context, id string) (*domain.Note, error)
	upsertErr    error
}

func (m *mockNoteRepo) Upsert(ctx context.Context, note *domain.Note) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes == nil {
		m.notes = make(map[string]domain.Note)
	}
	m.notes[note.ID] = *note
	return nil
}

func (m *mockNoteRepo) UpsertBatch(ctx context.Context, notes []domain.Note) error {
	for i := range notes {
		if err := m.Upsert(ctx, &notes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockNoteRepo) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	return &n, nil
}

func (m *mockNoteRepo) List(ctx context.Context, offset, limit int) ([]domain.Note, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.Note, 0, len(m.notes))
	for _, n := range m.notes {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *mockNoteRepo) FindNearby(ctx context.Context, center domain.Coordinate, radius float64, limit int) ([]domain.NearbyNote, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, center, radius, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NearbyNote
	for _, n := range m.notes {
		d := geospatial.DistanceMeters(center, n.Location)
		if d <= radius {
			out = append(out, domain.NearbyNote{Note: n, DistanceM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	c.sets++
	return nil
}

func (c *mockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock NotifiedSetStore ---

type mockStore struct {
	mu      sync.Mutex
	sets    map[string]domain.NotifiedSet
	getErr  error
	setErr  error
	getHits int
	setHits int
}

func newMockStore() *mockStore {
	return &mockStore{sets: make(map[string]domain.NotifiedSet)}
}

func (s *mockStore) Get(ctx context.Context, userID string) (*domain.NotifiedSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getHits++
	if s.getErr != nil {
		return nil, s.getErr
	}
	set, ok := s.sets[userID]
	if !ok {
		return nil, nil
	}
	return set.Clone(), nil
}

func (s *mockStore) Set(ctx context.Context, userID string, set *domain.NotifiedSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHits++
	if s.setErr != nil {
		return s.setErr
	}
	s.sets[userID] = *set.Clone()
	return nil
}

func (s *mockStore) stored(userID string) (domain.NotifiedSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[userID]
	return set, ok
}

// --- Mock NotificationDispatcher ---

type dispatched struct {
	userID string
	intent domain.NotificationIntent
}

type mockDispatcher struct {
	mu          sync.Mutex
	unavailable bool
	err         error
	sent        []dispatched
}

func (d *mockDispatcher) Available() bool { return !d.unavailable }

func (d *mockDispatcher) Dispatch(ctx context.Context, userID string, intent domain.NotificationIntent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, dispatched{userID: userID, intent: intent})
	return d.err
}

func (d *mockDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// Package memory holds in-process adapters used when no external storage is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/geo/s2"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

const coverCells = 12

type cellEntry struct {
	cell s2.CellID
	id   string
}

// NoteIndex implements ports.NoteRepository over an s2 leaf-cell index.
type NoteIndex struct {
	mu    sync.RWMutex
	notes map[string]domain.Note
	cells []cellEntry // sorted by cell
}

// NewNoteIndex creates an empty index.
func NewNoteIndex() *NoteIndex {
	return &NoteIndex{notes: make(map[string]domain.Note)}
}

// Upsert inserts or replaces a note.
func (x *NoteIndex) Upsert(_ context.Context, n *domain.Note) error {
	if !n.Location.Valid() {
		return domain.ErrInvalidCoordinate
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.upsertLocked(*n)
	return nil
}

// UpsertBatch inserts or replaces many notes. Invalid notes abort the batch
// before anything is written.
func (x *NoteIndex) UpsertBatch(_ context.Context, notes []domain.Note) error {
	for i := range notes {
		if !notes[i].Location.Valid() {
			return domain.ErrInvalidCoordinate
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, n := range notes {
		x.upsertLocked(n)
	}
	return nil
}

func (x *NoteIndex) upsertLocked(n domain.Note) {
	if old, ok := x.notes[n.ID]; ok {
		x.removeCellLocked(geospatial.LeafCell(old.Location), n.ID)
	}
	x.notes[n.ID] = n

	e := cellEntry{cell: geospatial.LeafCell(n.Location), id: n.ID}
	i := sort.Search(len(x.cells), func(i int) bool { return x.cells[i].cell >= e.cell })
	x.cells = append(x.cells, cellEntry{})
	copy(x.cells[i+1:], x.cells[i:])
	x.cells[i] = e
}

func (x *NoteIndex) removeCellLocked(cell s2.CellID, id string) {
	i := sort.Search(len(x.cells), func(i int) bool { return x.cells[i].cell >= cell })
	for ; i < len(x.cells) && x.cells[i].cell == cell; i++ {
		if x.cells[i].id == id {
			x.cells = append(x.cells[:i], x.cells[i+1:]...)
			return
		}
	}
}

// GetByID returns a copy of the note.
func (x *NoteIndex) GetByID(_ context.Context, id string) (*domain.Note, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	return &n, nil
}

// List returns notes newest first.
func (x *NoteIndex) List(_ context.Context, offset, limit int) ([]domain.Note, int, error) {
	x.mu.RLock()
	all := make([]domain.Note, 0, len(x.notes))
	for _, n := range x.notes {
		all = append(all, n)
	}
	x.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// FindNearby scans the cells covering the search cap and keeps the notes whose
// haversine distance is within radiusMeters, closest first.
func (x *NoteIndex) FindNearby(_ context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.NearbyNote, error) {
	if !center.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	covering := geospatial.CoverRadius(center, radiusMeters, coverCells)

	x.mu.RLock()
	seen := make(map[string]struct{})
	var out []domain.NearbyNote
	for _, c := range covering {
		lo, hi := c.RangeMin(), c.RangeMax()
		i := sort.Search(len(x.cells), func(i int) bool { return x.cells[i].cell >= lo })
		for ; i < len(x.cells) && x.cells[i].cell <= hi; i++ {
			id := x.cells[i].id
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			n := x.notes[id]
			d := geospatial.DistanceMeters(center, n.Location)
			if d > radiusMeters {
				continue
			}
			out = append(out, domain.NearbyNote{
				Note:       n,
				DistanceM:  d,
				BearingDeg: geospatial.BearingDegrees(center, n.Location),
			})
		}
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of indexed notes.
func (x *NoteIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.notes)
}

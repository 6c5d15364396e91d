package ports

import (
	"context"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// NoteRepository persists ghost notes and answers spatial queries over them.
type NoteRepository interface {
	Upsert(ctx context.Context, note *domain.Note) error
	UpsertBatch(ctx context.Context, notes []domain.Note) error
	GetByID(ctx context.Context, id string) (*domain.Note, error)
	List(ctx context.Context, offset, limit int) ([]domain.Note, int, error)
	// FindNearby returns notes within radiusMeters of center, closest first.
	FindNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.NearbyNote, error)
}

// NotifiedSetStore is per-user key-value persistence for proximity notification history.
type NotifiedSetStore interface {
	// Get returns (nil, nil) when no history exists for userID.
	Get(ctx context.Context, userID string) (*domain.NotifiedSet, error)
	Set(ctx context.Context, userID string, set *domain.NotifiedSet) error
}

// NotificationDispatcher delivers a notification to a user. Delivery is best-effort.
type NotificationDispatcher interface {
	// Available reports whether notifications can be delivered at all
	// (transport connected, permission granted).
	Available() bool
	Dispatch(ctx context.Context, userID string, intent domain.NotificationIntent) error
}

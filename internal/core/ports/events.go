package ports

import (
	"context"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// LocationEvent is a location fix attributed to a user.
type LocationEvent struct {
	UserID string             `json:"user_id"`
	Fix    domain.LocationFix `json:"fix"`
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishLocation(ctx context.Context, event *LocationEvent) error
	PublishNotification(ctx context.Context, userID string, intent domain.NotificationIntent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeLocations(ctx context.Context, handler func(ctx context.Context, event *LocationEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

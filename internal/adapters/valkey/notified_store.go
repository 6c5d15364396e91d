package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// DefaultNotifiedKey is the hash holding every user's notification history.
const DefaultNotifiedKey = "ghostnotes:notified"

// NotifiedSetStore implements ports.NotifiedSetStore as one field per user in
// a single Valkey hash.
type NotifiedSetStore struct {
	client valkey.Client
	key    string
}

// NewNotifiedSetStore shares the cache's client. An empty key selects DefaultNotifiedKey.
func NewNotifiedSetStore(c *Cache, key string) *NotifiedSetStore {
	if key == "" {
		key = DefaultNotifiedKey
	}
	return &NotifiedSetStore{client: c.client, key: key}
}

// Get returns the user's history, or nil when none was stored.
func (s *NotifiedSetStore) Get(ctx context.Context, userID string) (*domain.NotifiedSet, error) {
	b, err := s.client.Do(ctx, s.client.B().Hget().Key(s.key).Field(userID).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", userID, err)
	}

	var set domain.NotifiedSet
	if err := json.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("decode notified set for %s: %w", userID, err)
	}
	return &set, nil
}

// Set overwrites the user's history.
func (s *NotifiedSetStore) Set(ctx context.Context, userID string, set *domain.NotifiedSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode notified set: %w", err)
	}
	cmd := s.client.B().Hset().Key(s.key).FieldValue().FieldValue(userID, string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset %s: %w", userID, err)
	}
	return nil
}

// Delete forgets the user's history.
func (s *NotifiedSetStore) Delete(ctx context.Context, userID string) error {
	return s.client.Do(ctx, s.client.B().Hdel().Key(s.key).Field(userID).Build()).Error()
}

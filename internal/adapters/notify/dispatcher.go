// Package notify delivers proximity notifications to users.
//
// Two delivery paths exist. RelayDispatcher hands intents to the message bus,
// from where a relay connection (the /ws/notify socket) pushes them to the
// device, much like a service worker would. DirectDispatcher delivers to
// subscribers living in the same process. Select checks once at startup and
// picks one.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
)

// ErrNoRecipient is returned when the user has no live subscriber.
var ErrNoRecipient = errors.New("no live subscriber for user")

// Relay is the bus capability the relay dispatcher needs.
type Relay interface {
	PublishNotification(ctx context.Context, userID string, intent domain.NotificationIntent) error
	Connected() bool
}

// RelayDispatcher publishes intents to the bus.
type RelayDispatcher struct {
	relay Relay
}

// NewRelayDispatcher creates a RelayDispatcher.
func NewRelayDispatcher(relay Relay) *RelayDispatcher {
	return &RelayDispatcher{relay: relay}
}

func (d *RelayDispatcher) Available() bool {
	return d.relay != nil && d.relay.Connected()
}

func (d *RelayDispatcher) Dispatch(ctx context.Context, userID string, intent domain.NotificationIntent) error {
	return d.relay.PublishNotification(ctx, userID, intent)
}

// DirectDispatcher fans intents out to in-process subscribers.
type DirectDispatcher struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.NotificationIntent]struct{}
}

// NewDirectDispatcher creates a DirectDispatcher.
func NewDirectDispatcher() *DirectDispatcher {
	return &DirectDispatcher{subs: make(map[string]map[chan domain.NotificationIntent]struct{})}
}

func (d *DirectDispatcher) Available() bool { return true }

// Dispatch delivers to every subscriber of userID without blocking. A full
// subscriber buffer drops the intent for that subscriber.
func (d *DirectDispatcher) Dispatch(ctx context.Context, userID string, intent domain.NotificationIntent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subs := d.subs[userID]
	if len(subs) == 0 {
		return ErrNoRecipient
	}
	for ch := range subs {
		select {
		case ch <- intent:
		default:
		}
	}
	return nil
}

// Subscribe registers a receiver for userID. The cancel func unregisters it
// and closes the channel.
func (d *DirectDispatcher) Subscribe(userID string, buffer int) (<-chan domain.NotificationIntent, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan domain.NotificationIntent, buffer)

	d.mu.Lock()
	if d.subs[userID] == nil {
		d.subs[userID] = make(map[chan domain.NotificationIntent]struct{})
	}
	d.subs[userID][ch] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs[userID], ch)
			if len(d.subs[userID]) == 0 {
				delete(d.subs, userID)
			}
			d.mu.Unlock()
			close(ch)
		})
	}
}

// Select returns the relay dispatcher when the bus is reachable and the direct
// one otherwise. The choice is made once.
func Select(relay Relay, direct *DirectDispatcher, log *slog.Logger) ports.NotificationDispatcher {
	if log == nil {
		log = slog.Default()
	}
	if relay != nil && relay.Connected() {
		log.Info("notification dispatch via relay")
		return NewRelayDispatcher(relay)
	}
	if direct == nil {
		direct = NewDirectDispatcher()
	}
	log.Info("notification dispatch in-process")
	return direct
}

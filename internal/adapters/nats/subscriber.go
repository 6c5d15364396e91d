package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeLocations consumes location fixes with a durable consumer, so
// several notifier workers share the load.
func (s *Subscriber) SubscribeLocations(ctx context.Context, handler func(ctx context.Context, ev *ports.LocationEvent) error) error {
	sub, err := s.js.QueueSubscribe(LocationWildcard, "proximity-notifier", func(msg *nats.Msg) {
		var ev ports.LocationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			// malformed payloads will never parse, drop them
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &ev); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("proximity-notifier"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}

// SubscribeNotifications relays one user's notifications from a plain
// connection. The returned func unsubscribes.
func SubscribeNotifications(nc *nats.Conn, userID string, handler func(domain.NotificationIntent)) (func(), error) {
	tok, err := SubjectToken(userID)
	if err != nil {
		return nil, err
	}
	sub, err := nc.Subscribe(NotifySubjectPrefix+tok, func(msg *nats.Msg) {
		var intent domain.NotificationIntent
		if err := json.Unmarshal(msg.Data, &intent); err != nil {
			return
		}
		handler(intent)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

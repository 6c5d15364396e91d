package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
)

// Subjects used on the bus. The final token is always the user id.
const (
	LocationSubjectPrefix = "ghost.location."
	NotifySubjectPrefix   = "ghost.notify."
	LocationWildcard      = LocationSubjectPrefix + ">"
)

// ErrBadSubjectToken is returned for user ids that cannot be used as a subject token.
var ErrBadSubjectToken = errors.New("user id is not a valid subject token")

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "GHOST_LOCATIONS",
			Subjects:  []string{LocationWildcard},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "GHOST_NOTIFICATIONS",
			Subjects:  []string{NotifySubjectPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// SubjectToken validates a user id for use as the last subject token.
func SubjectToken(userID string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, ". *>\t\r\n") {
		return "", ErrBadSubjectToken
	}
	return userID, nil
}

func (p *Publisher) PublishLocation(ctx context.Context, ev *ports.LocationEvent) error {
	tok, err := SubjectToken(ev.UserID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(LocationSubjectPrefix+tok, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishNotification(ctx context.Context, userID string, intent domain.NotificationIntent) error {
	tok, err := SubjectToken(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(NotifySubjectPrefix+tok, data, nats.Context(ctx))
	return err
}

// Connected reports whether the underlying connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Conn exposes the connection for relays and readiness checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

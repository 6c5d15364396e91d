package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/pkg/telemetry"
)

// ProximityConfig controls when nearby notes trigger a notification.
type ProximityConfig struct {
	RadiusM  float64
	Cooldown time.Duration
}

// ErrNoPublisher is returned by Report when no message bus is configured.
var ErrNoPublisher = errors.New("no event publisher configured")

// candidateLimit caps how many notes are considered per location fix.
const candidateLimit = 50

// LocationService processes user location fixes for proximity notifications.
type LocationService struct {
	notes     ports.NoteRepository
	notifier  *ProximityNotifier
	publisher ports.EventPublisher
	cfg       ProximityConfig
}

// NewLocationService creates a new LocationService.
func NewLocationService(
	notes ports.NoteRepository,
	notifier *ProximityNotifier,
	publisher ports.EventPublisher,
	cfg ProximityConfig,
) *LocationService {
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = DefaultProximityRadiusM
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &LocationService{notes: notes, notifier: notifier, publisher: publisher, cfg: cfg}
}

// Evaluate loads the notes around fix and runs them through the notifier.
// An unknown location is not an error; it simply yields nothing.
func (s *LocationService) Evaluate(ctx context.Context, userID string, fix domain.LocationFix) ([]domain.NotificationIntent, error) {
	if !fix.Available || !fix.Coordinate.Valid() {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "proximity.evaluate", attribute.String("user.id", userID))
	defer span.End()

	nearby, err := s.notes.FindNearby(ctx, fix.Coordinate, s.cfg.RadiusM, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidate notes: %w", err)
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	notes := make([]domain.Note, len(nearby))
	for i, n := range nearby {
		notes[i] = n.Note
	}
	intents := s.notifier.Evaluate(ctx, userID, notes, fix, s.cfg.RadiusM, s.cfg.Cooldown)
	span.SetAttributes(attribute.Int("notes.candidates", len(notes)), attribute.Int("intents", len(intents)))
	return intents, nil
}

// ProcessLocationEvent is the bus handler used by the notifier worker.
func (s *LocationService) ProcessLocationEvent(ctx context.Context, ev *ports.LocationEvent) error {
	if ev == nil || ev.UserID == "" {
		return nil
	}
	_, err := s.Evaluate(ctx, ev.UserID, ev.Fix)
	return err
}

// Report hands a fix to the message bus for asynchronous evaluation.
func (s *LocationService) Report(ctx context.Context, userID string, fix domain.LocationFix) error {
	if s.publisher == nil {
		return ErrNoPublisher
	}
	if fix.At.IsZero() {
		fix.At = time.Now().UTC()
	}
	if err := s.publisher.PublishLocation(ctx, &ports.LocationEvent{UserID: userID, Fix: fix}); err != nil {
		return fmt.Errorf("publish location: %w", err)
	}
	return nil
}

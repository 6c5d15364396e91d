package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
)

// RevealSession drives one RevealGate from the live location and orientation
// streams. Events are handled one at a time in arrival order.
type RevealSession struct {
	gate     *RevealGate
	onChange func(domain.RevealState)
}

// NewRevealSession wraps gate. onChange receives every state produced by an input.
func NewRevealSession(gate *RevealGate, onChange func(domain.RevealState)) *RevealSession {
	return &RevealSession{gate: gate, onChange: onChange}
}

// Run consumes the streams until the note is revealed, the location stream is
// closed or ctx is cancelled. The gate is closed on every return path, which
// releases its ticker. A closed heading stream is treated as the heading
// becoming unavailable.
func (s *RevealSession) Run(ctx context.Context, locations <-chan domain.LocationFix, headings <-chan domain.HeadingReading) error {
	defer s.gate.Close()

	s.emit(s.gate.State())

	for {
		var st domain.RevealState
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fix, ok := <-locations:
			if !ok {
				return nil
			}
			st = s.gate.UpdateLocation(fix)
		case r, ok := <-headings:
			if !ok {
				headings = nil
				r = domain.HeadingReading{}
			}
			st = s.gate.UpdateHeading(r)
		case <-s.gate.TickC():
			st = s.gate.Tick()
		}

		s.emit(st)
		if st.Revealed {
			return nil
		}
	}
}

func (s *RevealSession) emit(st domain.RevealState) {
	if s.onChange != nil {
		s.onChange(st)
	}
}

// SessionRegistry keeps at most one active reveal target per user. Acquiring
// a new session for a user cancels the previous one and waits for it to
// release before returning.
type SessionRegistry struct {
	mu     sync.Mutex
	active map[string]*activeSession
}

type activeSession struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{active: make(map[string]*activeSession)}
}

// Acquire registers a session for userID and returns its context and a release
// func. The release func must be called on every exit path; it is idempotent.
func (r *SessionRegistry) Acquire(ctx context.Context, userID string) (context.Context, func(), error) {
	for {
		r.mu.Lock()
		prev, ok := r.active[userID]
		if !ok {
			sctx, cancel := context.WithCancel(ctx)
			sess := &activeSession{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
			r.active[userID] = sess
			r.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					cancel()
					r.mu.Lock()
					if cur, ok := r.active[userID]; ok && cur.id == sess.id {
						delete(r.active, userID)
					}
					r.mu.Unlock()
					close(sess.done)
				})
			}
			return sctx, release, nil
		}
		r.mu.Unlock()

		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// Active returns the number of users with a live session.
func (r *SessionRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// RevealService opens reveal sessions against stored notes.
type RevealService struct {
	notes    ports.NoteRepository
	registry *SessionRegistry
	cfg      RevealGateConfig
	opts     []GateOption
	log      *slog.Logger
}

// NewRevealService creates a new RevealService.
func NewRevealService(notes ports.NoteRepository, registry *SessionRegistry, cfg RevealGateConfig, opts ...GateOption) *RevealService {
	if registry == nil {
		registry = NewSessionRegistry()
	}
	return &RevealService{notes: notes, registry: registry, cfg: cfg, opts: opts, log: slog.Default()}
}

// Registry exposes the session registry (for gauges and tests).
func (s *RevealService) Registry() *SessionRegistry {
	return s.registry
}

// Run makes noteID the active target for userID and drives its gate until the
// note is revealed, the streams end or ctx is cancelled. Any previous target of
// the same user is torn down first.
func (s *RevealService) Run(
	ctx context.Context,
	userID, noteID string,
	locations <-chan domain.LocationFix,
	headings <-chan domain.HeadingReading,
	onChange func(domain.RevealState),
	opts ...GateOption,
) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return fmt.Errorf("load note %s: %w", noteID, err)
	}
	if note == nil {
		return domain.ErrNoteNotFound
	}

	sctx, release, err := s.registry.Acquire(ctx, userID)
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	defer release()

	all := append(append([]GateOption{}, s.opts...), opts...)
	gate := NewRevealGate(*note, s.cfg, all...)

	s.log.Debug("reveal session started", "user_id", userID, "note_id", noteID)
	err = NewRevealSession(gate, onChange).Run(sctx, locations, headings)
	s.log.Debug("reveal session ended", "user_id", userID, "note_id", noteID)

	// a session cancelled because the user picked another target is not an error
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return nil
	}
	return err
}

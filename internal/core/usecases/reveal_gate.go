package usecases

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

const (
	DefaultRevealRadiusM  = 35.0
	DefaultRevealAngleDeg = 25.0
	DefaultTickInterval   = 200 * time.Millisecond
	DefaultProgressStep   = 10
	fullProgress          = 100
)

// RevealGateConfig tunes the reveal state machine.
type RevealGateConfig struct {
	// RequireSightline gates alignment on the device heading (AR mode).
	RequireSightline bool
	TickInterval     time.Duration
	ProgressStep     int
	// Fallbacks for notes stored without their own reveal policy.
	DefaultRadiusM  float64
	DefaultAngleDeg float64
}

func (c RevealGateConfig) withDefaults() RevealGateConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = DefaultProgressStep
	}
	if c.DefaultRadiusM <= 0 {
		c.DefaultRadiusM = DefaultRevealRadiusM
	}
	if c.DefaultAngleDeg <= 0 {
		c.DefaultAngleDeg = DefaultRevealAngleDeg
	}
	return c
}

// GateOption customizes a RevealGate.
type GateOption func(*RevealGate)

// WithClock sets the clock used for the progress ticker.
func WithClock(clock clockwork.Clock) GateOption {
	return func(g *RevealGate) { g.clock = clock }
}

// WithOnReveal registers the one-time reveal callback.
func WithOnReveal(fn func(domain.RevealState)) GateOption {
	return func(g *RevealGate) { g.onReveal = fn }
}

// WithOnTransition registers a hook invoked on every phase change.
func WithOnTransition(fn func(from, to domain.RevealPhase)) GateOption {
	return func(g *RevealGate) { g.onTransition = fn }
}

// WithGateLogger sets the logger.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *RevealGate) { g.log = l }
}

// RevealGate decides when a single target note turns from hidden to revealed.
//
// The gate owns its progress ticker: the ticker is started on entry to
// PhaseAligning and stopped on every exit from it and on Close. Callers read
// TickC and feed each tick back through Tick.
type RevealGate struct {
	mu sync.Mutex

	note         domain.Note
	radiusM      float64
	angleDeg     float64
	cfg          RevealGateConfig
	clock        clockwork.Clock
	log          *slog.Logger
	onReveal     func(domain.RevealState)
	onTransition func(from, to domain.RevealPhase)

	phase    domain.RevealPhase
	progress int
	fired    bool
	closed   bool

	hasLocation bool
	location    domain.Coordinate
	hasHeading  bool
	headingDeg  float64

	ticker clockwork.Ticker
}

// NewRevealGate creates a gate for note in the Hidden phase.
func NewRevealGate(note domain.Note, cfg RevealGateConfig, opts ...GateOption) *RevealGate {
	cfg = cfg.withDefaults()
	g := &RevealGate{
		note:     note,
		cfg:      cfg,
		radiusM:  note.RevealRadiusM,
		angleDeg: note.RevealAngleDeg,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		phase:    domain.PhaseHidden,
	}
	if !geospatial.Finite(g.radiusM) || g.radiusM <= 0 {
		g.radiusM = cfg.DefaultRadiusM
	}
	if !geospatial.Finite(g.angleDeg) || g.angleDeg <= 0 {
		g.angleDeg = cfg.DefaultAngleDeg
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NoteID returns the id of the target note.
func (g *RevealGate) NoteID() string {
	return g.note.ID
}

// UpdateLocation feeds a location reading. Unavailable or malformed fixes
// are treated as an unknown position, which keeps the gate hidden.
func (g *RevealGate) UpdateLocation(fix domain.LocationFix) domain.RevealState {
	g.mu.Lock()
	if fix.Available && fix.Coordinate.Valid() {
		g.hasLocation = true
		g.location = fix.Coordinate
	} else {
		g.hasLocation = false
	}
	return g.evaluateAndUnlock()
}

// UpdateHeading feeds an orientation reading. Non-finite headings count as unavailable.
func (g *RevealGate) UpdateHeading(r domain.HeadingReading) domain.RevealState {
	g.mu.Lock()
	if r.Available && geospatial.Finite(r.HeadingDeg) {
		g.hasHeading = true
		g.headingDeg = geospatial.NormalizeDegrees(r.HeadingDeg)
	} else {
		g.hasHeading = false
	}
	return g.evaluateAndUnlock()
}

// Tick accrues alignment progress. Ticks that arrive outside PhaseAligning are stale and ignored.
func (g *RevealGate) Tick() domain.RevealState {
	g.mu.Lock()
	if g.closed || g.phase != domain.PhaseAligning {
		st := g.stateLocked()
		g.mu.Unlock()
		return st
	}

	g.progress += g.cfg.ProgressStep
	var revealed bool
	if g.progress >= fullProgress {
		g.progress = fullProgress
		g.setPhaseLocked(domain.PhaseRevealed)
		revealed = !g.fired
		g.fired = true
	}
	st := g.stateLocked()
	onReveal, hook := g.onReveal, g.onTransition
	g.mu.Unlock()

	if revealed {
		g.log.Info("note revealed", "note_id", g.note.ID)
		if hook != nil {
			hook(domain.PhaseAligning, domain.PhaseRevealed)
		}
		if onReveal != nil {
			onReveal(st)
		}
	}
	return st
}

// TickC returns the live ticker channel, or nil when no ticker is running.
// A nil channel blocks forever in a select, so callers can always include it.
func (g *RevealGate) TickC() <-chan time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticker == nil {
		return nil
	}
	return g.ticker.Chan()
}

// Ticking reports whether the progress ticker is currently held.
func (g *RevealGate) Ticking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ticker != nil
}

// State returns a snapshot of the gate.
func (g *RevealGate) State() domain.RevealState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

// Close releases the ticker. Further inputs are ignored. Safe to call more than once.
func (g *RevealGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTickerLocked()
	g.closed = true
}

func (g *RevealGate) evaluateAndUnlock() domain.RevealState {
	from := g.phase
	if !g.closed && g.phase != domain.PhaseRevealed {
		g.setPhaseLocked(g.targetPhaseLocked())
	}
	to := g.phase
	st := g.stateLocked()
	hook := g.onTransition
	g.mu.Unlock()

	if from != to && hook != nil {
		hook(from, to)
	}
	return st
}

func (g *RevealGate) targetPhaseLocked() domain.RevealPhase {
	if !g.hasLocation {
		return domain.PhaseHidden
	}
	dist := geospatial.DistanceMeters(g.location, g.note.Location)
	if !geospatial.Finite(dist) || dist > g.radiusM {
		return domain.PhaseHidden
	}
	if g.alignedLocked() {
		return domain.PhaseAligning
	}
	return domain.PhaseInRange
}

func (g *RevealGate) alignedLocked() bool {
	if !g.cfg.RequireSightline {
		return true
	}
	if !g.hasHeading {
		return false
	}
	bearing := geospatial.BearingDegrees(g.location, g.note.Location)
	return geospatial.AngularDifference(g.headingDeg, bearing) <= g.angleDeg
}

func (g *RevealGate) setPhaseLocked(next domain.RevealPhase) {
	if next == g.phase {
		return
	}
	if g.phase == domain.PhaseAligning {
		g.stopTickerLocked()
	}
	if next != domain.PhaseRevealed {
		g.progress = 0
	}
	if next == domain.PhaseAligning {
		g.ticker = g.clock.NewTicker(g.cfg.TickInterval)
	}
	g.log.Debug("reveal phase change", "note_id", g.note.ID, "from", g.phase.String(), "to", next.String())
	g.phase = next
}

func (g *RevealGate) stopTickerLocked() {
	if g.ticker != nil {
		g.ticker.Stop()
		g.ticker = nil
	}
}

func (g *RevealGate) stateLocked() domain.RevealState {
	st := domain.RevealState{
		NoteID:            g.note.ID,
		Phase:             g.phase,
		AlignmentProgress: g.progress,
		Revealed:          g.phase == domain.PhaseRevealed,
		Blocker:           domain.BlockerNone,
	}

	if !g.hasLocation {
		st.Blocker = domain.BlockerLocationUnknown
	} else {
		dist := geospatial.DistanceMeters(g.location, g.note.Location)
		bearing := geospatial.BearingDegrees(g.location, g.note.Location)
		st.DistanceM = &dist
		st.BearingDeg = &bearing
		st.WithinRadius = geospatial.Finite(dist) && dist <= g.radiusM
		if g.cfg.RequireSightline && !g.hasHeading {
			st.Blocker = domain.BlockerHeadingUnavailable
		}
	}
	if g.hasHeading {
		h := g.headingDeg
		st.HeadingDeg = &h
	}
	if st.Revealed {
		st.Blocker = domain.BlockerNone
	}
	return st
}

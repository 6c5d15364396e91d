package domain

// RevealPhase is the position of a note in the reveal state machine.
type RevealPhase int

const (
	PhaseHidden RevealPhase = iota
	PhaseInRange
	PhaseAligning
	PhaseRevealed
)

func (p RevealPhase) String() string {
	switch p {
	case PhaseHidden:
		return "hidden"
	case PhaseInRange:
		return "in_range"
	case PhaseAligning:
		return "aligning"
	case PhaseRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// MarshalText lets phases serialize as their string names.
func (p RevealPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Blocker names a missing sensor signal that keeps a reveal from progressing.
// It is reported separately from the phase so callers can prompt for a
// permission instead of implying the user is far away.
type Blocker int

const (
	BlockerNone Blocker = iota
	BlockerLocationUnknown
	BlockerHeadingUnavailable
)

func (b Blocker) String() string {
	switch b {
	case BlockerNone:
		return "none"
	case BlockerLocationUnknown:
		return "location_unknown"
	case BlockerHeadingUnavailable:
		return "heading_unavailable"
	default:
		return "unknown"
	}
}

// MarshalText lets blockers serialize as their string names.
func (b Blocker) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// RevealState is the per-session view of one active target note.
type RevealState struct {
	NoteID            string      `json:"note_id"`
	Phase             RevealPhase `json:"phase"`
	WithinRadius      bool        `json:"within_radius"`
	AlignmentProgress int         `json:"alignment_progress"`
	Revealed          bool        `json:"revealed"`
	Blocker           Blocker     `json:"blocker"`
	DistanceM         *float64    `json:"distance_m,omitempty"`
	BearingDeg        *float64    `json:"bearing_deg,omitempty"`
	HeadingDeg        *float64    `json:"heading_deg,omitempty"`
}

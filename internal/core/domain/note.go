package domain

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrNoteNotFound is returned when a note id does not resolve.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidNote is returned when a note fails validation on create.
	ErrInvalidNote = errors.New("invalid note")
)

// Note is a geo-anchored ghost note.
type Note struct {
	ID             string     `json:"id"`
	AuthorID       string     `json:"author_id"`
	Text           string     `json:"text"`
	PhotoURL       string     `json:"photo_url,omitempty"`
	Location       Coordinate `json:"location"`
	RevealRadiusM  float64    `json:"reveal_radius_m"`
	RevealAngleDeg float64    `json:"reveal_angle_deg"`
	Geocell        string     `json:"geocell,omitempty"` // s2 cell token used by spatial lookups
	CreatedAt      time.Time  `json:"created_at"`
}

// NearbyNote is a note annotated relative to the querying position.
type NearbyNote struct {
	Note
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
}

// NotificationIntent is the decision to notify a user about a nearby note.
type NotificationIntent struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// NotifiedSet is the per-user record of notes that already triggered a
// proximity notification.
type NotifiedSet struct {
	NoteIDs        []string  `json:"note_ids"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

// Contains reports whether the note id was already notified.
func (s *NotifiedSet) Contains(noteID string) bool {
	if s == nil {
		return false
	}
	return slices.Contains(s.NoteIDs, noteID)
}

// Mark records a notification for noteID at t.
func (s *NotifiedSet) Mark(noteID string, t time.Time) {
	if !s.Contains(noteID) {
		s.NoteIDs = append(s.NoteIDs, noteID)
	}
	s.LastNotifiedAt = t
}

// Merge folds other into s: the union of note ids, in s's order then other's,
// and the later LastNotifiedAt. Both sides only ever grow, so merging a stale
// copy with a fresh one never loses a mark.
func (s *NotifiedSet) Merge(other *NotifiedSet) {
	if other == nil {
		return
	}
	seen := s.Index()
	for _, id := range other.NoteIDs {
		if _, ok := seen[id]; !ok {
			s.NoteIDs = append(s.NoteIDs, id)
			seen[id] = struct{}{}
		}
	}
	if other.LastNotifiedAt.After(s.LastNotifiedAt) {
		s.LastNotifiedAt = other.LastNotifiedAt
	}
}

// Index returns the note ids as a lookup set.
func (s *NotifiedSet) Index() map[string]struct{} {
	if s == nil {
		return map[string]struct{}{}
	}
	idx := make(map[string]struct{}, len(s.NoteIDs))
	for _, id := range s.NoteIDs {
		idx[id] = struct{}{}
	}
	return idx
}

// Clone returns a deep copy so callers can persist without sharing the slice.
func (s *NotifiedSet) Clone() *NotifiedSet {
	if s == nil {
		return &NotifiedSet{}
	}
	return &NotifiedSet{
		NoteIDs:        slices.Clone(s.NoteIDs),
		LastNotifiedAt: s.LastNotifiedAt,
	}
}

// LocationFix is one reading from the device location stream.
// Available is false when the permission was denied or no fix exists yet.
type LocationFix struct {
	Coordinate Coordinate `json:"coordinate"`
	AccuracyM  float64    `json:"accuracy_m"`
	Available  bool       `json:"available"`
	At         time.Time  `json:"at"`
}

// HeadingReading is one reading from the device orientation stream.
type HeadingReading struct {
	HeadingDeg float64   `json:"heading_deg"`
	Available  bool      `json:"available"`
	At         time.Time `json:"at"`
}

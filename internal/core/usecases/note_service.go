package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
	"github.com/samirrijal/ghostnotes/internal/pkg/telemetry"
)

const (
	MaxNearbyRadiusM     = 5000.0
	DefaultNearbyRadiusM = 500.0
	MaxNearbyLimit       = 50
	MaxNoteTextLength    = 500
	MaxListLimit         = 100
)

// NewNote is the input for creating a note.
type NewNote struct {
	// ID is optional; a random UUID is assigned when empty.
	ID             string
	AuthorID       string
	Text           string
	PhotoURL       string
	Location       domain.Coordinate
	RevealRadiusM  float64
	RevealAngleDeg float64
}

// NoteService handles note queries and creation.
type NoteService struct {
	notes ports.NoteRepository
	cache ports.CacheService
	clock clockwork.Clock

	defaultRadiusM  float64
	defaultAngleDeg float64
}

// NewNoteService creates a new NoteService. Notes created without a reveal
// policy take the defaults from cfg.
func NewNoteService(notes ports.NoteRepository, cache ports.CacheService, cfg RevealGateConfig) *NoteService {
	cfg = cfg.withDefaults()
	return &NoteService{
		notes:           notes,
		cache:           cache,
		clock:           clockwork.NewRealClock(),
		defaultRadiusM:  cfg.DefaultRadiusM,
		defaultAngleDeg: cfg.DefaultAngleDeg,
	}
}

// SetClock overrides the clock used for CreatedAt.
func (s *NoteService) SetClock(c clockwork.Clock) {
	s.clock = c
}

// FindNearby returns notes within radiusMeters of center, closest first, each
// annotated with the distance and bearing from center.
func (s *NoteService) FindNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.NearbyNote, error) {
	if !center.Valid() {
		return nil, domain.ErrInvalidCoordinate
	}
	if limit <= 0 || limit > MaxNearbyLimit {
		limit = MaxNearbyLimit
	}
	if !geospatial.Finite(radiusMeters) || radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusM
	}
	if radiusMeters > MaxNearbyRadiusM {
		radiusMeters = MaxNearbyRadiusM
	}

	// Try cache
	cacheKey := fmt.Sprintf("notes:nearby:%.4f:%.4f:%.0f:%d", center.Lat, center.Lng, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var notes []domain.NearbyNote
			if err := json.Unmarshal(data, &notes); err == nil {
				return annotate(center, notes), nil
			}
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "notes.find_nearby", attribute.Float64("radius_m", radiusMeters))
	notes, err := s.notes.FindNearby(ctx, center, radiusMeters, limit)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("find nearby notes: %w", err)
	}

	// Short TTL: new notes should surface quickly
	if s.cache != nil {
		if data, err := json.Marshal(notes); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 30)
		}
	}

	return annotate(center, notes), nil
}

// annotate recomputes distance and bearing from the exact query point, since
// cached entries are shared by nearby callers.
func annotate(center domain.Coordinate, notes []domain.NearbyNote) []domain.NearbyNote {
	for i := range notes {
		notes[i].DistanceM = geospatial.DistanceMeters(center, notes[i].Location)
		notes[i].BearingDeg = geospatial.BearingDegrees(center, notes[i].Location)
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].DistanceM < notes[j].DistanceM })
	return notes
}

// GetByID returns a single note.
func (s *NoteService) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	cacheKey := "notes:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var note domain.Note
			if err := json.Unmarshal(data, &note); err == nil {
				return &note, nil
			}
		}
	}

	note, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, domain.ErrNoteNotFound
	}

	if s.cache != nil {
		if data, err := json.Marshal(note); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}

	return note, nil
}

// List returns a page of notes and the total count.
func (s *NoteService) List(ctx context.Context, offset, limit int) ([]domain.Note, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.notes.List(ctx, offset, limit)
}

// Create validates and stores a new note.
func (s *NoteService) Create(ctx context.Context, in NewNote) (*domain.Note, error) {
	note, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.notes.Upsert(ctx, &note); err != nil {
		return nil, fmt.Errorf("store note: %w", err)
	}
	return &note, nil
}

// CreateBatch validates every input before storing any of them. Inputs with an
// ID replace the stored note of the same ID.
func (s *NoteService) CreateBatch(ctx context.Context, ins []NewNote) ([]domain.Note, error) {
	notes := make([]domain.Note, 0, len(ins))
	for i, in := range ins {
		note, err := s.build(in)
		if err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}
		notes = append(notes, note)
	}
	if len(notes) == 0 {
		return notes, nil
	}
	if err := s.notes.UpsertBatch(ctx, notes); err != nil {
		return nil, fmt.Errorf("store notes: %w", err)
	}
	return notes, nil
}

func (s *NoteService) build(in NewNote) (domain.Note, error) {
	if err := s.validate(&in); err != nil {
		return domain.Note{}, err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	return domain.Note{
		ID:             id,
		AuthorID:       in.AuthorID,
		Text:           in.Text,
		PhotoURL:       in.PhotoURL,
		Location:       in.Location,
		RevealRadiusM:  in.RevealRadiusM,
		RevealAngleDeg: in.RevealAngleDeg,
		Geocell:        geospatial.CellToken(in.Location),
		CreatedAt:      s.clock.Now().UTC(),
	}, nil
}

func (s *NoteService) validate(in *NewNote) error {
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	in.Text = strings.TrimSpace(in.Text)

	var problems []string
	if in.ID != "" {
		if _, err := uuid.Parse(in.ID); err != nil {
			problems = append(problems, "id must be a UUID")
		}
	}
	if in.AuthorID == "" {
		problems = append(problems, "author_id is required")
	}
	if in.Text == "" && in.PhotoURL == "" {
		problems = append(problems, "text or photo_url is required")
	}
	if utf8.RuneCountInString(in.Text) > MaxNoteTextLength {
		problems = append(problems, fmt.Sprintf("text must be at most %d characters", MaxNoteTextLength))
	}
	if !in.Location.Valid() {
		problems = append(problems, "location is out of range")
	}

	switch {
	case in.RevealRadiusM == 0:
		in.RevealRadiusM = s.defaultRadiusM
	case !geospatial.Finite(in.RevealRadiusM) || in.RevealRadiusM < 0 || in.RevealRadiusM > MaxNearbyRadiusM:
		problems = append(problems, "reveal_radius_m must be between 0 and 5000")
	}
	switch {
	case in.RevealAngleDeg == 0:
		in.RevealAngleDeg = s.defaultAngleDeg
	case !geospatial.Finite(in.RevealAngleDeg) || in.RevealAngleDeg < 0 || in.RevealAngleDeg > 180:
		problems = append(problems, "reveal_angle_deg must be between 0 and 180")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidNote, strings.Join(problems, "; "))
	}
	return nil
}

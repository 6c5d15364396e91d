package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

// prefilterSlack widens the PostGIS sphere query so that the exact haversine
// filter applied afterwards never loses a note to radius rounding differences.
const prefilterSlack = 1.01

const noteColumns = `
	id, author_id, text, COALESCE(photo_url, ''),
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lng,
	reveal_radius_m, reveal_angle_deg, COALESCE(geocell, ''), created_at`

const upsertNoteSQL = `
	INSERT INTO notes (id, author_id, text, photo_url, location, reveal_radius_m, reveal_angle_deg, geocell, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, NULLIF($9, ''), $10)
	ON CONFLICT (id) DO UPDATE
	SET text = EXCLUDED.text, photo_url = EXCLUDED.photo_url,
	    location = EXCLUDED.location,
	    reveal_radius_m = EXCLUDED.reveal_radius_m,
	    reveal_angle_deg = EXCLUDED.reveal_angle_deg,
	    geocell = EXCLUDED.geocell`

// NoteRepo implements ports.NoteRepository with pgx and PostGIS.
type NoteRepo struct {
	db *DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func upsertArgs(n *domain.Note) []any {
	return []any{
		n.ID, n.AuthorID, n.Text, n.PhotoURL,
		n.Location.Lng, n.Location.Lat,
		n.RevealRadiusM, n.RevealAngleDeg, n.Geocell, n.CreatedAt,
	}
}

// Upsert inserts or updates a single note.
func (r *NoteRepo) Upsert(ctx context.Context, n *domain.Note) error {
	if _, err := r.db.Pool.Exec(ctx, upsertNoteSQL, upsertArgs(n)...); err != nil {
		return fmt.Errorf("upsert note %s: %w", n.ID, err)
	}
	return nil
}

// UpsertBatch inserts many notes using pgx.Batch.
func (r *NoteRepo) UpsertBatch(ctx context.Context, notes []domain.Note) error {
	batch := &pgx.Batch{}
	for i := range notes {
		batch.Queue(upsertNoteSQL, upsertArgs(&notes[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range notes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner, extra ...any) (domain.Note, error) {
	var n domain.Note
	dest := []any{
		&n.ID, &n.AuthorID, &n.Text, &n.PhotoURL,
		&n.Location.Lat, &n.Location.Lng,
		&n.RevealRadiusM, &n.RevealAngleDeg, &n.Geocell, &n.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return n, err
}

// GetByID returns a note by UUID.
func (r *NoteRepo) GetByID(ctx context.Context, id string) (*domain.Note, error) {
	n, err := scanNote(r.db.Pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns notes newest first, with the total row count.
func (r *NoteRepo) List(ctx context.Context, offset, limit int) ([]domain.Note, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		ORDER BY created_at DESC, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

// FindNearby returns notes within radiusMeters using PostGIS ST_DWithin on the
// sphere, then applies the exact haversine filter so results agree with the
// in-process reveal math.
func (r *NoteRepo) FindNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, limit int) ([]domain.NearbyNote, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+noteColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, false) AS distance
		FROM notes
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3, false)
		ORDER BY distance
		LIMIT $4
	`, center.Lng, center.Lat, radiusMeters*prefilterSlack, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.NearbyNote
	for rows.Next() {
		var dist float64
		n, err := scanNote(rows, &dist)
		if err != nil {
			return nil, err
		}
		d := geospatial.DistanceMeters(center, n.Location)
		if d > radiusMeters {
			continue
		}
		notes = append(notes, domain.NearbyNote{
			Note:       n,
			DistanceM:  d,
			BearingDeg: geospatial.BearingDegrees(center, n.Location),
		})
	}
	return notes, rows.Err()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/ghostnotes/internal/adapters/postgres"
	"github.com/samirrijal/ghostnotes/internal/bootstrap"
	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
	"github.com/samirrijal/ghostnotes/internal/pkg/logging"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source string      `json:"source"`
	Notes  []NoteEntry `json:"notes"`
}

type NoteEntry struct {
	// Key makes the note id stable across runs. Defaults to author and position.
	Key            string  `json:"key,omitempty"`
	AuthorID       string  `json:"author_id"`
	Text           string  `json:"text"`
	PhotoURL       string  `json:"photo_url,omitempty"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	RevealRadiusM  float64 `json:"reveal_radius_m,omitempty"`
	RevealAngleDeg float64 `json:"reveal_angle_deg,omitempty"`
}

// seedNamespace scopes the name-based note ids.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ghostnotes/seed"))

const batchSize = 500

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("ghostnotes-seed")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("ghostnotes-seed", cfg.Log.Level, cfg.Log.Format)

	manifestPath := "seed.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}
	manifest, err := loadManifest(manifestPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	svc := usecases.NewNoteService(postgres.NewNoteRepo(db), nil, bootstrap.RevealGateConfig(cfg.Reveal))

	start := time.Now()
	inputs := toNewNotes(manifest.Notes)
	stored := 0
	for lo := 0; lo < len(inputs); lo += batchSize {
		hi := min(lo+batchSize, len(inputs))
		notes, err := svc.CreateBatch(ctx, inputs[lo:hi])
		if err != nil {
			db.Close()
			log.Fatalf("batch at %d: %v", lo, err)
		}
		stored += len(notes)
	}

	slog.Info("seed complete",
		"source", manifest.Source,
		"notes", stored,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func toNewNotes(entries []NoteEntry) []usecases.NewNote {
	out := make([]usecases.NewNote, 0, len(entries))
	for _, e := range entries {
		out = append(out, usecases.NewNote{
			ID:             noteID(e).String(),
			AuthorID:       e.AuthorID,
			Text:           e.Text,
			PhotoURL:       e.PhotoURL,
			Location:       domain.Coordinate{Lat: e.Lat, Lng: e.Lng},
			RevealRadiusM:  e.RevealRadiusM,
			RevealAngleDeg: e.RevealAngleDeg,
		})
	}
	return out
}

func noteID(e NoteEntry) uuid.UUID {
	key := e.Key
	if key == "" {
		key = e.AuthorID + "@" +
			strconv.FormatFloat(e.Lat, 'f', 6, 64) + "," +
			strconv.FormatFloat(e.Lng, 'f', 6, 64)
	}
	return uuid.NewSHA1(seedNamespace, []byte(key))
}

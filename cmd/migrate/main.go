package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/samirrijal/ghostnotes/internal/adapters/postgres"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
	"github.com/samirrijal/ghostnotes/internal/pkg/logging"
)

var upFiles = []string{
	"migrations/001_init_extensions.sql",
	"migrations/002_notes.sql",
}

// Extensions are left installed on down.
var downFiles = []string{
	"migrations/002_notes.down.sql",
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("ghostnotes-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("ghostnotes-migrate", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var files []string
	switch os.Args[1] {
	case "up":
		files = upFiles
	case "down":
		files = downFiles
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}

	if err := apply(ctx, db, files); err != nil {
		db.Close()
		log.Fatal(err)
	}
	if os.Args[1] == "up" {
		if v, err := db.PostGISVersion(ctx); err == nil {
			slog.Info("postgis ready", "version", v)
		}
	}
	slog.Info("migrations applied", "direction", os.Args[1], "files", len(files))
}

func apply(ctx context.Context, db *postgres.DB, files []string) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if err := db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		slog.Info("applied", "file", f)
	}
	return nil
}

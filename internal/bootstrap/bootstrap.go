// Package bootstrap opens the storage backends and builds the shared services
// of the api and notifier binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/ghostnotes/internal/adapters/memory"
	"github.com/samirrijal/ghostnotes/internal/adapters/postgres"
	"github.com/samirrijal/ghostnotes/internal/adapters/valkey"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
)

// Infra holds the opened backends. Optional backends are nil when disabled or
// unreachable.
type Infra struct {
	Notes   ports.NoteRepository
	History ports.NotifiedSetStore
	// Cache is nil when valkey is not in use.
	Cache ports.CacheService

	DB     *postgres.DB
	Valkey *valkey.Cache
}

// Open connects the note store and the notification history store. The notes
// driver is required; valkey is optional and falls back to process memory.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Infra, error) {
	if log == nil {
		log = slog.Default()
	}
	infra := &Infra{}

	switch cfg.Storage.Driver {
	case "memory":
		infra.Notes = memory.NewNoteIndex()
		log.Info("notes stored in memory")
	default:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := postgres.New(cctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		infra.DB = db
		infra.Notes = postgres.NewNoteRepo(db)
		if v, err := db.PostGISVersion(ctx); err != nil {
			log.Warn("postgis missing, run migrate up", "error", err)
		} else {
			log.Info("notes stored in postgres", "postgis", v)
		}
	}

	if cfg.Valkey.Enabled {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			log.Warn("valkey unavailable, notification history kept in memory", "error", err)
		} else {
			infra.Valkey = cache
			infra.Cache = cache
			infra.History = valkey.NewNotifiedSetStore(cache, cfg.Valkey.NotifiedKey)
		}
	}
	if infra.History == nil {
		infra.History = memory.NewNotifiedSetStore()
	}

	return infra, nil
}

// PoolStat returns a pool statistics source, or nil without a database.
func (i *Infra) PoolStat() func() metrics.PoolStat {
	if i.DB == nil {
		return nil
	}
	return func() metrics.PoolStat { return i.DB.Stat() }
}

// Close releases every opened backend.
func (i *Infra) Close() {
	if i.Valkey != nil {
		i.Valkey.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// RevealGateConfig converts the reveal section of the configuration.
func RevealGateConfig(c config.RevealConfig) usecases.RevealGateConfig {
	return usecases.RevealGateConfig{
		RequireSightline: c.RequireSightline,
		TickInterval:     c.TickInterval,
		ProgressStep:     c.ProgressStep,
		DefaultRadiusM:   c.DefaultRadiusM,
		DefaultAngleDeg:  c.DefaultAngleDeg,
	}
}

// ProximityConfig converts the proximity section of the configuration.
func ProximityConfig(c config.ProximityConfig) usecases.ProximityConfig {
	return usecases.ProximityConfig{RadiusM: c.RadiusM, Cooldown: c.Cooldown}
}

// NewNotifier builds the proximity notifier with its metrics hooks.
func NewNotifier(c config.ProximityConfig, history ports.NotifiedSetStore, dispatcher ports.NotificationDispatcher, log *slog.Logger) *usecases.ProximityNotifier {
	opts := []usecases.NotifierOption{
		usecases.WithDispatchObserver(func(result string) {
			metrics.ProximityNotifications.WithLabelValues(result).Inc()
		}),
		usecases.WithStoreErrorObserver(func(op string) {
			metrics.NotifiedStoreErrors.WithLabelValues(op).Inc()
		}),
	}
	if c.DispatchTimeout > 0 {
		opts = append(opts, usecases.WithDispatchTimeout(c.DispatchTimeout))
	}
	if log != nil {
		opts = append(opts, usecases.WithNotifierLogger(log))
	}
	return usecases.NewProximityNotifier(history, dispatcher, opts...)
}

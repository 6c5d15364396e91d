package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/ghostnotes/internal/adapters/http"
	natsadapter "github.com/samirrijal/ghostnotes/internal/adapters/nats"
	"github.com/samirrijal/ghostnotes/internal/adapters/notify"
	"github.com/samirrijal/ghostnotes/internal/bootstrap"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
	"github.com/samirrijal/ghostnotes/internal/pkg/jobs"
	"github.com/samirrijal/ghostnotes/internal/pkg/logging"
	"github.com/samirrijal/ghostnotes/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("ghostnotes-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logging.Setup("ghostnotes-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr, cfg.Telemetry.Exporter)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Notes + notification history
	infra, err := bootstrap.Open(ctx, cfg, appLog)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer infra.Close()

	// NATS: JetStream publisher for location fixes and notification relay,
	// plain connection for the notify WebSocket.
	var (
		publisher ports.EventPublisher
		relay     notify.Relay
		natsPub   *natsadapter.Publisher
	)
	if cfg.NATS.Enabled {
		natsPub, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, notifications dispatched in-process", "error", err)
		} else {
			defer natsPub.Close()
			publisher = natsPub
			relay = natsPub
		}
	}

	direct := notify.NewDirectDispatcher()
	dispatcher := notify.Select(relay, direct, appLog)

	notifier := bootstrap.NewNotifier(cfg.Proximity, infra.History, dispatcher, appLog)
	revealCfg := bootstrap.RevealGateConfig(cfg.Reveal)

	// Use cases
	noteSvc := usecases.NewNoteService(infra.Notes, infra.Cache, revealCfg)
	locationSvc := usecases.NewLocationService(infra.Notes, notifier, publisher, bootstrap.ProximityConfig(cfg.Proximity))
	revealSvc := usecases.NewRevealService(infra.Notes, usecases.NewSessionRegistry(), revealCfg)

	deps := &http.Dependencies{
		Notes:     noteSvc,
		Locations: locationSvc,
		Frames:    usecases.NewFrameService(),
		Reveals:   revealSvc,
		Direct:    direct,
		Storage:   cfg.Storage.Driver,
		DB:        infra.DB,
		Cache:     infra.Valkey,
	}
	if natsPub != nil {
		deps.NATS = natsPub.Conn()
	}

	// Background maintenance
	scheduler, err := jobs.New(appLog)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	err = jobs.RegisterMaintenance(ctx, scheduler, jobs.MaintenanceConfig{
		PoolStat:      infra.PoolStat(),
		Notifier:      notifier,
		IdleTTL:       cfg.Proximity.IdleTTL,
		PruneInterval: cfg.Proximity.PruneInterval,
	})
	if err != nil {
		log.Fatalf("schedule jobs: %v", err)
	}
	scheduler.Start()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Ghost Notes API",
	})
	app.Use(recover.New())
	if cfg.Log.Level == "debug" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "storage", cfg.Storage.Driver)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		slog.Warn("scheduler shutdown", "error", err)
	}
	notifier.Wait()

	slog.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	natsadapter "github.com/samirrijal/ghostnotes/internal/adapters/nats"
	"github.com/samirrijal/ghostnotes/internal/adapters/notify"
	"github.com/samirrijal/ghostnotes/internal/bootstrap"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
	"github.com/samirrijal/ghostnotes/internal/pkg/jobs"
	"github.com/samirrijal/ghostnotes/internal/pkg/logging"
	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
	"github.com/samirrijal/ghostnotes/internal/pkg/telemetry"
)

// The notifier worker consumes location fixes from JetStream, runs them
// through the proximity notifier and relays notifications back over NATS.
func main() {
	cfg, err := config.Load("ghostnotes-notifier")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if !cfg.NATS.Enabled {
		log.Fatal("notifier requires nats.enabled")
	}

	appLog := logging.Setup("ghostnotes-notifier", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr, cfg.Telemetry.Exporter)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	infra, err := bootstrap.Open(ctx, cfg, appLog)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer infra.Close()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}

	dispatcher := notify.Select(pub, nil, appLog)
	notifier := bootstrap.NewNotifier(cfg.Proximity, infra.History, dispatcher, appLog)
	locations := usecases.NewLocationService(infra.Notes, notifier, pub, bootstrap.ProximityConfig(cfg.Proximity))

	err = sub.SubscribeLocations(ctx, func(ctx context.Context, ev *ports.LocationEvent) error {
		err := locations.ProcessLocationEvent(ctx, ev)
		switch {
		case err == nil:
			metrics.LocationEvents.WithLabelValues("ok").Inc()
		case errors.Is(err, context.Canceled):
			metrics.LocationEvents.WithLabelValues("cancelled").Inc()
		default:
			metrics.LocationEvents.WithLabelValues("error").Inc()
			slog.Warn("location event failed", "user_id", ev.UserID, "error", err)
		}
		return err
	})
	if err != nil {
		log.Fatalf("subscribe locations: %v", err)
	}
	slog.Info("consuming location fixes", "subject", natsadapter.LocationWildcard)

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

	// Metrics + liveness only
	app := fiber.New(fiber.Config{DisableStartupMessage: true, AppName: "Ghost Notes notifier"})
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())
	app.Get("/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "tracked_users": notifier.Tracked()})
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("notifier metrics listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			slog.Error("metrics listener stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down notifier", "signal", sig.String())

	sub.Close()
	cancel()
	if err := scheduler.Shutdown(); err != nil {
		slog.Warn("scheduler shutdown", "error", err)
	}
	notifier.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
}

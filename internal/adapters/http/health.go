package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Version is stamped at build time with -ldflags "-X ...http.Version=...".
var Version = "dev"

// HealthHandler is the liveness check. It never touches dependencies.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
			"storage": deps.Storage,
		})
	}
}

// depCheck reports one dependency. The database is required; nats and the cache
// only fail readiness when configured and down.
type depCheck struct {
	name  string
	check func(ctx context.Context) (state string, ok bool)
}

func readinessChecks(deps *Dependencies) []depCheck {
	return []depCheck{
		{name: "database", check: func(ctx context.Context) (string, bool) {
			switch {
			case deps.DB != nil:
				if err := deps.DB.Ping(ctx); err != nil {
					return "error: " + err.Error(), false
				}
				return "ok", true
			case deps.Storage == "memory":
				return "in-memory", true
			}
			return "not configured", false
		}},
		{name: "nats", check: func(context.Context) (string, bool) {
			switch {
			case deps.NATS == nil:
				return "not configured", true
			case !deps.NATS.IsConnected():
				return "disconnected", false
			}
			return "ok", true
		}},
		{name: "cache", check: func(ctx context.Context) (string, bool) {
			if deps.Cache == nil {
				return "not configured", true
			}
			if err := deps.Cache.Ping(ctx); err != nil {
				return "error: " + err.Error(), false
			}
			return "ok", true
		}},
	}
}

// ReadyHandler runs every dependency check under one 3s budget and answers 503 if any fails.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	depChecks := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(depChecks))
		ready := true
		for _, d := range depChecks {
			state, ok := d.check(ctx)
			checks[d.name] = state
			if !ok {
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}

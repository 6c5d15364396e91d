package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
)

const (
	requestTimeout = 15 * time.Second
	// Per client IP. Only websocket upgrades count, not frames.
	requestsPerMinute = 120
)

// SetupRoutes registers middleware, health checks, REST, GraphQL, docs and websocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	useMiddleware(app)

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	restRoutes(app, deps)
	SetupDocs(app, "")
	realtimeRoutes(app, deps)
}

func useMiddleware(app *fiber.App) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	app.Use(limiter.New(limiter.Config{
		Max:          requestsPerMinute,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
}

func restRoutes(app *fiber.App, deps *Dependencies) {
	bounded := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, requestTimeout)
	}

	v1 := app.Group("/v1")

	notes := v1.Group("/notes")
	notes.Get("", bounded(ListNotesHandler(deps)))
	notes.Post("", bounded(CreateNoteHandler(deps)))
	// static paths before :id
	notes.Get("/nearby", bounded(NearbyNotesHandler(deps)))
	notes.Get("/nearby.geojson", bounded(NearbyNotesGeoJSONHandler(deps)))
	notes.Get("/:id", bounded(GetNoteHandler(deps)))

	v1.Post("/proximity/evaluate", bounded(EvaluateProximityHandler(deps)))
	v1.Post("/locations", bounded(ReportLocationHandler(deps)))
	v1.Post("/frame/local", bounded(LocalFrameHandler(deps)))

	app.Post("/graphql", bounded(GraphQLHandler(deps)))
}

// realtimeRoutes are long-lived, so they sit outside the request timeout.
func realtimeRoutes(app *fiber.App, deps *Dependencies) {
	ws := app.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/reveal/:id", websocket.New(RevealWebSocketHandler(deps)))
	ws.Get("/notify", websocket.New(NotifyWebSocketHandler(deps)))
}

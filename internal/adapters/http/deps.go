package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/ghostnotes/internal/adapters/notify"
	"github.com/samirrijal/ghostnotes/internal/adapters/postgres"
	"github.com/samirrijal/ghostnotes/internal/adapters/valkey"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Notes     *usecases.NoteService
	Locations *usecases.LocationService
	Frames    *usecases.FrameService
	Reveals   *usecases.RevealService

	// Direct serves /ws/notify when no NATS connection is configured.
	Direct *notify.DirectDispatcher

	// Storage is the configured notes driver ("postgres" or "memory").
	Storage string
	NATS    *nats.Conn
	DB      *postgres.DB
	Cache   *valkey.Cache
}

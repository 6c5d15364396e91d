package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	natsadapter "github.com/samirrijal/ghostnotes/internal/adapters/nats"
	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/metrics"
)

const pingInterval = 30 * time.Second

// revealMessage is sent from client to feed the reveal session.
type revealMessage struct {
	Type       string  `json:"type"` // location | heading | location_unavailable | heading_unavailable
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AccuracyM  float64 `json:"accuracy_m"`
	HeadingDeg float64 `json:"heading_deg"`
}

// wsWriter serializes writes from the session, relay and ping goroutines.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsWriter) close(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// unblocks the reader
	_ = w.conn.Close()
}

// keepAlive pings until done is closed or a write fails.
func keepAlive(w *wsWriter, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// revealFrames writes every state, then the revealed marker after the final
// revealed state. The session emits a revealed state exactly once.
func revealFrames(w *wsWriter) func(domain.RevealState) {
	return func(st domain.RevealState) {
		_ = w.writeJSON(st)
		if st.Revealed {
			_ = w.writeJSON(map[string]string{"type": "revealed", "note_id": st.NoteID})
		}
	}
}

// RevealWebSocketHandler drives a reveal session for note :id.
// Clients stream {"type":"location","lat":..,"lng":..} and
// {"type":"heading","heading_deg":..} frames. The server answers with the
// reveal state on every change and a single {"type":"revealed"} frame, then
// closes the connection.
func RevealWebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		noteID := c.Params("id")
		userID := c.Query("user")
		w := &wsWriter{conn: c}
		log := slog.Default().With("note_id", noteID, "user_id", userID, "remote", c.RemoteAddr().String())

		if userID == "" {
			_ = w.writeJSON(map[string]string{"error": "user query parameter is required"})
			return
		}

		metrics.ActiveWebSockets.WithLabelValues("reveal").Inc()
		defer metrics.ActiveWebSockets.WithLabelValues("reveal").Dec()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		locations := make(chan domain.LocationFix, 4)
		headings := make(chan domain.HeadingReading, 4)
		sessionDone := make(chan struct{})

		go func() {
			defer close(sessionDone)
			metrics.ActiveRevealSessions.Inc()
			defer metrics.ActiveRevealSessions.Dec()

			err := deps.Reveals.Run(ctx, userID, noteID, locations, headings,
				revealFrames(w),
				usecases.WithOnTransition(func(from, to domain.RevealPhase) {
					metrics.ObserveTransition(from.String(), to.String())
				}),
			)
			switch {
			case err == nil:
				w.close("session ended")
			case ctx.Err() != nil:
				// client went away
			default:
				log.Warn("reveal session failed", "error", err)
				_ = w.writeJSON(map[string]string{"error": err.Error()})
				w.close("session failed")
			}
		}()

		pingDone := make(chan struct{})
		go keepAlive(w, pingDone)

		log.Debug("reveal ws connected")
	read:
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m revealMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = w.writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			now := time.Now().UTC()
			switch m.Type {
			case "location", "location_unavailable":
				fix := domain.LocationFix{
					Coordinate: domain.Coordinate{Lat: m.Lat, Lng: m.Lng},
					AccuracyM:  m.AccuracyM,
					Available:  m.Type == "location",
					At:         now,
				}
				select {
				case locations <- fix:
				case <-sessionDone:
					break read
				}
			case "heading", "heading_unavailable":
				r := domain.HeadingReading{HeadingDeg: m.HeadingDeg, Available: m.Type == "heading", At: now}
				select {
				case headings <- r:
				case <-sessionDone:
					break read
				}
			default:
				_ = w.writeJSON(map[string]string{"error": "unknown message type: " + m.Type})
			}
		}

		close(pingDone)
		cancel()
		<-sessionDone
		log.Debug("reveal ws disconnected")
	}
}

// NotifyWebSocketHandler relays proximity notifications for ?user= to the
// client. NATS is used when connected; otherwise the in-process dispatcher.
func NotifyWebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		userID := c.Query("user")
		w := &wsWriter{conn: c}
		log := slog.Default().With("user_id", userID, "remote", c.RemoteAddr().String())

		if userID == "" {
			_ = w.writeJSON(map[string]string{"error": "user query parameter is required"})
			return
		}

		relay := func(intent domain.NotificationIntent) {
			_ = w.writeJSON(intent)
		}

		var unsubscribe func()
		switch {
		case deps.NATS != nil:
			unsub, err := natsadapter.SubscribeNotifications(deps.NATS, userID, relay)
			if err != nil {
				log.Warn("notify subscribe failed", "error", err)
				_ = w.writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
				return
			}
			unsubscribe = unsub
		case deps.Direct != nil:
			ch, cancel := deps.Direct.Subscribe(userID, 16)
			go func() {
				for intent := range ch {
					relay(intent)
				}
			}()
			unsubscribe = cancel
		default:
			_ = w.writeJSON(map[string]string{"error": "notifications unavailable"})
			return
		}
		defer unsubscribe()

		metrics.ActiveWebSockets.WithLabelValues("notify").Inc()
		defer metrics.ActiveWebSockets.WithLabelValues("notify").Dec()

		done := make(chan struct{})
		go keepAlive(w, done)
		defer close(done)

		_ = w.writeJSON(map[string]string{"status": "subscribed"})
		log.Debug("notify ws connected")

		// Inbound frames are ignored; reading surfaces the disconnect.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		log.Debug("notify ws disconnected")
	}
}

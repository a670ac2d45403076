package websocket

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Streamer produces the event stream for one chat request.
type Streamer interface {
	GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent]
}

// Hub serves the stream protocol over WebSocket. Each text frame from the
// client is a ChatRequest; every StreamEvent goes back as one JSON text
// frame. Requests on one connection are answered in order.
type Hub struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]context.CancelFunc
	streamer    Streamer
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
}

func NewHub(streamer Streamer, allowedOrigins []string, logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]context.CancelFunc),
		streamer:    streamer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	h.registerConnection(conn, cancel)
	defer h.unregisterConnection(conn)

	// The reader owns disconnect detection: a failed read cancels ctx, which
	// abandons any stream in flight.
	requests := make(chan []byte)
	go func() {
		defer cancel()
		defer close(requests)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case requests <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range requests {
		if !h.serve(ctx, conn, data) {
			return
		}
	}
}

// serve answers one request frame. It returns false when the connection
// can no longer be written to.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, data []byte) bool {
	var req models.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return h.send(conn, models.ErrorEvent("invalid request: must be a JSON object"))
	}
	if err := services.Validate(&req); err != nil {
		return h.send(conn, models.ErrorEvent(err.Error()))
	}

	sent := 0
	for ev := range h.streamer.GenerateStream(ctx, &req) {
		if !h.send(conn, ev) {
			h.logger.Info().Int("events_sent", sent).Msg("WebSocket write failed, abandoning stream")
			return false
		}
		sent++
	}
	return ctx.Err() == nil
}

func (h *Hub) send(conn *websocket.Conn, ev models.StreamEvent) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write error")
		return false
	}
	return true
}

func (h *Hub) registerConnection(conn *websocket.Conn, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn] = cancel
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("total", len(h.connections)).Msg("WebSocket connected")
}

func (h *Hub) unregisterConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, ok := h.connections[conn]; ok {
		cancel()
		delete(h.connections, conn)
	}
	conn.Close()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket disconnected")
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Close sends a going-away frame to every client and cancels their streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn, cancel := range h.connections {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		cancel()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

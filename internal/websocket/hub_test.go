package websocket

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

type stubStreamer struct {
	events    []models.StreamEvent
	block     bool
	cancelled chan struct{}
}

func (s *stubStreamer) GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent] {
	return func(yield func(models.StreamEvent) bool) {
		for _, ev := range s.events {
			if !yield(ev) {
				return
			}
		}
		if s.block {
			<-ctx.Done()
			close(s.cancelled)
		}
	}
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.StreamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.StreamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestHub_RelaysStreamEvents(t *testing.T) {
	streamer := &stubStreamer{events: []models.StreamEvent{
		models.ChunkEvent("Hello"),
		models.ChunkEvent(" there"),
		models.DoneEvent(map[string]interface{}{"model": "test-model"}),
	}}
	conn := dial(t, NewHub(streamer, []string{"*"}, zerolog.Nop()))

	if err := conn.WriteJSON(models.ChatRequest{Message: "hi", PatientName: "Jane"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var text string
	for {
		ev := readEvent(t, conn)
		if ev.Type == models.EventChunk {
			text += ev.Text
		}
		if ev.Terminal() {
			if ev.Type != models.EventDone {
				t.Fatalf("terminal event = %q, want done", ev.Type)
			}
			break
		}
	}
	if text != "Hello there" {
		t.Errorf("text = %q", text)
	}

	// The connection stays open for another request.
	if err := conn.WriteJSON(models.ChatRequest{Message: "again", PatientName: "Jane"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != models.EventChunk {
		t.Errorf("second request first event = %q", ev.Type)
	}
}

func TestHub_InvalidRequestYieldsErrorEvent(t *testing.T) {
	conn := dial(t, NewHub(&stubStreamer{}, []string{"*"}, zerolog.Nop()))

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != models.EventError || ev.Message == "" {
		t.Errorf("expected error event, got %+v", ev)
	}

	if err := conn.WriteJSON(map[string]string{"patient_name": "Jane"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != models.EventError || !strings.Contains(ev.Message, "message") {
		t.Errorf("expected validation error event, got %+v", ev)
	}
}

func TestHub_DisconnectCancelsStream(t *testing.T) {
	streamer := &stubStreamer{
		events:    []models.StreamEvent{models.ChunkEvent("partial")},
		block:     true,
		cancelled: make(chan struct{}),
	}
	hub := NewHub(streamer, []string{"*"}, zerolog.Nop())
	conn := dial(t, hub)

	if err := conn.WriteJSON(models.ChatRequest{Message: "hi", PatientName: "Jane"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn)
	if n := hub.Count(); n != 1 {
		t.Fatalf("Count = %d while connected", n)
	}
	conn.Close()

	select {
	case <-streamer.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("stream context was not cancelled after disconnect")
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Count = %d after disconnect", hub.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_CloseSendsGoingAway(t *testing.T) {
	hub := NewHub(&stubStreamer{}, []string{"*"}, zerolog.Nop())
	conn := dial(t, hub)

	deadline := time.Now().Add(5 * time.Second)
	for hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://clinic.test"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://clinic.test", true},
		{"http://evil.test", false},
		{"", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("wildcard should allow all origins")
	}
}

package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
)

type stubAssistant struct {
	result  *models.GenerationResult
	err     error
	events  []models.StreamEvent
	calls   int
	lastReq *models.ChatRequest
}

func (s *stubAssistant) Generate(ctx context.Context, req *models.ChatRequest) (*models.GenerationResult, error) {
	s.calls++
	s.lastReq = req
	return s.result, s.err
}

func (s *stubAssistant) GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent] {
	s.calls++
	s.lastReq = req
	return func(yield func(models.StreamEvent) bool) {
		for _, ev := range s.events {
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *stubAssistant) Model() string { return "test-model" }

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return resp.Error
}

func TestGenerateHandler_Success(t *testing.T) {
	stub := &stubAssistant{result: &models.GenerationResult{
		Response: "Floss once a day.",
		Metadata: map[string]interface{}{"model": "test-model", "finish_reason": "STOP"},
	}}
	h := NewChatHandler(stub, zerolog.Nop())

	rr := postJSON(t, h.Generate, "/chat/generate",
		`{"message":"How often should I floss?","patient_name":"Jane","medical_notes":"none","chat_history":[]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var got map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["response"] != "Floss once a day." {
		t.Errorf("response = %v", got["response"])
	}
	if got["emergency_detected"] != false {
		t.Errorf("emergency_detected = %v", got["emergency_detected"])
	}
	if stub.lastReq.Notes() != "none" || stub.lastReq.PatientName != "Jane" {
		t.Errorf("request not passed through: %+v", stub.lastReq)
	}
}

func TestGenerateHandler_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing message", `{"patient_name":"Jane"}`, "message"},
		{"missing patient", `{"message":"hi"}`, "patient_name"},
		{"message too long", `{"message":"` + strings.Repeat("a", 2001) + `","patient_name":"Jane"}`, "message"},
		{"bad role", `{"message":"hi","patient_name":"Jane","chat_history":[{"role":"system","content":"x"}]}`, "chat_history[0].role"},
		{"not json", `{`, "body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubAssistant{}
			h := NewChatHandler(stub, zerolog.Nop())

			rr := postJSON(t, h.Generate, "/chat/generate", tc.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rr.Code)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", apiErr.Code)
			}
			if _, ok := apiErr.Fields[tc.field]; !ok {
				t.Errorf("expected field %q in %v", tc.field, apiErr.Fields)
			}
			if stub.calls != 0 {
				t.Error("assistant should not be called for invalid input")
			}
		})
	}
}

func TestGenerateHandler_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"timeout", &services.UpstreamError{Kind: services.KindUpstreamTimeout}, "UPSTREAM_TIMEOUT"},
		{"rate limited", &services.UpstreamError{Kind: services.KindUpstreamRateLimited}, "UPSTREAM_RATE_LIMITED"},
		{"config", &services.UpstreamError{Kind: services.KindUpstreamConfig, Message: "API key expired"}, "UPSTREAM_CONFIG_ERROR"},
		{"generic", &services.UpstreamError{Kind: services.KindUpstream}, "UPSTREAM_ERROR"},
		{"untyped", errors.New("boom"), "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&stubAssistant{err: tc.err}, zerolog.Nop())

			rr := postJSON(t, h.Generate, "/chat/generate", `{"message":"hi","patient_name":"Jane"}`)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("Expected 500, got %d", rr.Code)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.code {
				t.Errorf("code = %q, want %q", apiErr.Code, tc.code)
			}
			if apiErr.Message == "" {
				t.Error("expected a human-readable message")
			}
		})
	}
}

// readSSE splits a body into data payloads, failing on any other framing.
func readSSE(t *testing.T, body string) []models.StreamEvent {
	t.Helper()
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("body must end with a blank line: %q", body)
	}

	var events []models.StreamEvent
	for _, unit := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		if !strings.HasPrefix(unit, "data: ") || strings.Contains(unit, "\n") {
			t.Fatalf("bad SSE unit: %q", unit)
		}
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(unit, "data: ")), &ev); err != nil {
			t.Fatalf("bad event JSON %q: %v", unit, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamHandler_FramesEvents(t *testing.T) {
	stub := &stubAssistant{events: []models.StreamEvent{
		models.ChunkEvent("Brush "),
		models.ChunkEvent("twice\ndaily."),
		models.DoneEvent(map[string]interface{}{"model": "test-model"}),
	}}
	h := NewChatHandler(stub, zerolog.Nop())

	rr := postJSON(t, h.Stream, "/chat/stream", `{"message":"hi","patient_name":"Jane"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rr.Header().Get("Cache-Control") != "no-cache" {
		t.Error("expected Cache-Control: no-cache")
	}
	if !rr.Flushed {
		t.Error("expected events to be flushed")
	}

	events := readSSE(t, rr.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	if events[1].Text != "twice\ndaily." {
		t.Errorf("chunk text = %q", events[1].Text)
	}
	if events[2].Type != models.EventDone || events[2].Metadata["model"] != "test-model" {
		t.Errorf("terminal = %+v", events[2])
	}
}

func TestStreamHandler_ExactFraming(t *testing.T) {
	stub := &stubAssistant{events: []models.StreamEvent{
		models.EmergencyEvent("Call us"),
		models.DoneEvent(map[string]interface{}{"emergency_detected": true}),
	}}
	h := NewChatHandler(stub, zerolog.Nop())

	rr := postJSON(t, h.Stream, "/chat/stream", `{"message":"bleeding","patient_name":"Jane"}`)

	want := `data: {"type":"emergency","text":"Call us"}` + "\n\n" +
		`data: {"type":"done","metadata":{"emergency_detected":true}}` + "\n\n"
	if rr.Body.String() != want {
		t.Errorf("body = %q\nwant %q", rr.Body.String(), want)
	}
}

func TestStreamHandler_ValidationErrorIsSingleEvent(t *testing.T) {
	stub := &stubAssistant{}
	h := NewChatHandler(stub, zerolog.Nop())

	rr := postJSON(t, h.Stream, "/chat/stream", `{"patient_name":"Jane"}`)

	events := readSSE(t, rr.Body.String())
	if len(events) != 1 || events[0].Type != models.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if !strings.Contains(events[0].Message, "message is required") {
		t.Errorf("message = %q", events[0].Message)
	}
	if stub.calls != 0 {
		t.Error("assistant should not be called")
	}
}

func TestStreamHandler_StopsAfterTerminalEvent(t *testing.T) {
	stub := &stubAssistant{events: []models.StreamEvent{
		models.ChunkEvent("partial"),
		models.ErrorEvent("AI service timed out. Please try again."),
		models.ChunkEvent("never sent"),
	}}
	h := NewChatHandler(stub, zerolog.Nop())

	rr := postJSON(t, h.Stream, "/chat/stream", `{"message":"hi","patient_name":"Jane"}`)

	events := readSSE(t, rr.Body.String())
	if len(events) != 2 || events[1].Type != models.EventError {
		t.Fatalf("unexpected events: %+v", events)
	}
}

type failingWriter struct {
	header http.Header
	writes int
}

func (f *failingWriter) Header() http.Header { return f.header }
func (f *failingWriter) WriteHeader(int)     {}
func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes > 1 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestStreamHandler_AbandonsOnWriteError(t *testing.T) {
	consumed := 0
	events := []models.StreamEvent{
		models.ChunkEvent("one"),
		models.ChunkEvent("two"),
		models.ChunkEvent("three"),
		models.DoneEvent(nil),
	}
	assistant := &countingAssistant{events: events, consumed: &consumed}
	h := NewChatHandler(assistant, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"hi","patient_name":"Jane"}`))
	w := &failingWriter{header: http.Header{}}
	h.Stream(w, req)

	if consumed != 2 {
		t.Errorf("consumed %d events, want 2 (stop after the failed write)", consumed)
	}
}

type countingAssistant struct {
	stubAssistant
	events   []models.StreamEvent
	consumed *int
}

func (c *countingAssistant) GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent] {
	return func(yield func(models.StreamEvent) bool) {
		for _, ev := range c.events {
			*c.consumed++
			if !yield(ev) {
				return
			}
		}
	}
}

func TestStreamHandler_ScannerReadsLines(t *testing.T) {
	stub := &stubAssistant{events: []models.StreamEvent{models.DoneEvent(map[string]interface{}{"model": "m"})}}
	h := NewChatHandler(stub, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"message":"hi","patient_name":"Jane"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 || lines[0] != `data: {"type":"done","metadata":{"model":"m"}}` || lines[1] != "" {
		t.Errorf("lines = %q", lines)
	}
}

package models

// Stream event types
const (
	EventChunk     = "chunk"
	EventEmergency = "emergency"
	EventDone      = "done"
	EventError     = "error"
)

// StreamEvent is one unit of a streamed generation. A stream carries any
// number of chunk/emergency events followed by exactly one done or error.
type StreamEvent struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

func ChunkEvent(text string) StreamEvent {
	return StreamEvent{Type: EventChunk, Text: text}
}

func EmergencyEvent(text string) StreamEvent {
	return StreamEvent{Type: EventEmergency, Text: text}
}

func DoneEvent(metadata map[string]interface{}) StreamEvent {
	return StreamEvent{Type: EventDone, Metadata: metadata}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

package models

// QueuedRequest is the wire form of a ChatRequest pushed onto the request queue.
type QueuedRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	ChatRequest
}

// Chat returns the embedded chat request.
func (q *QueuedRequest) Chat() *ChatRequest {
	return &q.ChatRequest
}

// QueuedResponse is stored in the response mailbox under the request id.
type QueuedResponse struct {
	RequestID         string                 `json:"request_id"`
	Response          string                 `json:"response"`
	Metadata          map[string]interface{} `json:"metadata"`
	EmergencyDetected bool                   `json:"emergency_detected"`
	Error             string                 `json:"error,omitempty"`
}

// Failed reports whether the worker could not produce a response.
func (q *QueuedResponse) Failed() bool {
	return q.Error != ""
}

// NewQueuedResponse builds a successful mailbox entry from a generation result.
func NewQueuedResponse(requestID string, result *GenerationResult) *QueuedResponse {
	return &QueuedResponse{
		RequestID:         requestID,
		Response:          result.Response,
		Metadata:          result.Metadata,
		EmergencyDetected: result.EmergencyDetected,
	}
}

// NewFailedResponse builds an error mailbox entry.
func NewFailedResponse(requestID string, err error) *QueuedResponse {
	return &QueuedResponse{
		RequestID: requestID,
		Metadata:  map[string]interface{}{},
		Error:     err.Error(),
	}
}

type SubmitResponse struct {
	RequestID string `json:"request_id"`
}

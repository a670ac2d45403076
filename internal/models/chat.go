package models

// ChatHistoryItem represents a single message in a conversation.
type ChatHistoryItem struct {
	Role    string `json:"role" validate:"oneof=user assistant"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoints.
type ChatRequest struct {
	Message      string            `json:"message" validate:"required,max=2000"`
	PatientName  string            `json:"patient_name" validate:"required"`
	MedicalNotes *string           `json:"medical_notes"`
	ChatHistory  []ChatHistoryItem `json:"chat_history" validate:"dive"`
}

// Notes returns the medical notes or an empty string.
func (r *ChatRequest) Notes() string {
	if r.MedicalNotes == nil {
		return ""
	}
	return *r.MedicalNotes
}

// GenerationResult is produced once per chat request.
type GenerationResult struct {
	Response          string                 `json:"response"`
	Metadata          map[string]interface{} `json:"metadata"`
	EmergencyDetected bool                   `json:"emergency_detected"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Model   string            `json:"model"`
	Checks  map[string]string `json:"checks,omitempty"`
}

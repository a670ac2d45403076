package services

import (
	"fmt"
	"strings"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

const (
	noNotesPlaceholder = "No medical notes available"
	truncationMarker   = "..."
)

// PromptBuilder assembles the full prompt sent to the model.
type PromptBuilder struct {
	MaxHistory     int
	MaxNotesLength int
}

// Build renders the persona preamble, patient context, recent history and
// the new message. It never performs I/O.
func (p PromptBuilder) Build(patientName string, medicalNotes *string, history []models.ChatHistoryItem, message string) string {
	var b strings.Builder

	// Role and guidelines
	b.WriteString("You are a knowledgeable and empathetic dental assistant AI helping clinic staff communicate with patients.\n\n")
	b.WriteString("IMPORTANT GUIDELINES:\n")
	b.WriteString("- Provide professional, concise (2-3 paragraphs max), non-technical responses\n")
	b.WriteString("- Focus on dental procedures, care instructions, and general dental health questions\n")
	b.WriteString("- Use simple, patient-friendly language\n")
	b.WriteString("- Be warm, empathetic, and reassuring\n")
	b.WriteString("- NEVER diagnose medical conditions or prescribe treatments\n")
	b.WriteString("- NEVER provide specific medical advice - always defer to the dentist\n")
	b.WriteString("- For emergencies (severe pain, bleeding, trauma), advise immediate contact with clinic or emergency services\n")
	b.WriteString("- If unsure, recommend scheduling an appointment with the dentist\n\n")

	// Patient context
	b.WriteString("PATIENT CONTEXT:\n")
	b.WriteString(fmt.Sprintf("- Patient Name: %s\n", patientName))
	b.WriteString(fmt.Sprintf("- Medical Notes: %s\n\n", p.truncateNotes(medicalNotes)))
	b.WriteString("Remember: You are assisting clinic staff in communicating with patients, not replacing professional dental advice.\n\n")

	// History
	if rendered := p.renderHistory(history); rendered != "" {
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}

	// New turn
	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\n\nAssistant:")

	return b.String()
}

// truncateNotes cuts notes at exactly MaxNotesLength characters and marks the cut.
func (p PromptBuilder) truncateNotes(notes *string) string {
	if notes == nil || *notes == "" {
		return noNotesPlaceholder
	}
	runes := []rune(*notes)
	if p.MaxNotesLength < 0 || len(runes) <= p.MaxNotesLength {
		return *notes
	}
	return string(runes[:p.MaxNotesLength]) + truncationMarker
}

func (p PromptBuilder) renderHistory(history []models.ChatHistoryItem) string {
	recent := RecentHistory(history, p.MaxHistory)
	if len(recent) == 0 {
		return ""
	}

	lines := make([]string, 0, len(recent))
	for _, item := range recent {
		role := "User"
		if item.Role == "assistant" {
			role = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, item.Content))
	}
	return strings.Join(lines, "\n\n")
}

// RecentHistory returns the last max items of history, oldest first.
func RecentHistory(history []models.ChatHistoryItem, max int) []models.ChatHistoryItem {
	if max <= 0 {
		return nil
	}
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

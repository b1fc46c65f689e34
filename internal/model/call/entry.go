package call

import "time"

// Roles a conversation entry can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationEntry persists one turn of the call transcript.
type ConversationEntry struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence,omitempty"`
	DurationMs  int       `json:"durationMs,omitempty"`
	Interrupted bool      `json:"interrupted,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

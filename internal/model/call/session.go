package call

import "time"

// Session tracks one live phone call for the lifetime of its relay connection.
type Session struct {
	ID             string              `json:"id"`
	From           string              `json:"from"`
	To             string              `json:"to"`
	StartTime      time.Time           `json:"startTime"`
	LastActivity   time.Time           `json:"lastActivity"`
	History        []ConversationEntry `json:"history"`
	DTMFBuffer     string              `json:"dtmfBuffer,omitempty"`
	SequenceNumber int                 `json:"sequenceNumber"`
	Active         bool                `json:"active"`
}

// LastAssistantText returns the newest assistant entry's content, or the
// empty string when the transcript has none.
func (s Session) LastAssistantText() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i].Content
		}
	}
	return ""
}

// Summary is the end-of-call record returned when a session is closed.
type Summary struct {
	ID       string        `json:"id"`
	From     string        `json:"from"`
	To       string        `json:"to"`
	Reason   string        `json:"reason"`
	Duration time.Duration `json:"duration"`
	Messages int           `json:"messages"`
}

package relay

import "time"

// Outbound event type discriminators. End reuses TypeEnd from the inbound set.
const (
	TypeText       = "text"
	TypePlay       = "play"
	TypeSendDigits = "sendDigits"
	TypeLanguage   = "language"
	TypePong       = "pong"
)

// OutboundEvent is one message written to the relay transport.
type OutboundEvent interface {
	isOutbound()
}

// TextToken streams one speakable fragment to the transport's TTS. A token
// with Last set closes the current reply.
type TextToken struct {
	Type          string `json:"type"`
	Token         string `json:"token"`
	Last          bool   `json:"last"`
	Lang          string `json:"lang,omitempty"`
	Interruptible *bool  `json:"interruptible,omitempty"`
	Preemptible   *bool  `json:"preemptible,omitempty"`
}

func (TextToken) isOutbound() {}

// NewTextToken builds a text event for one fragment.
func NewTextToken(token string, last bool) TextToken {
	return TextToken{Type: TypeText, Token: token, Last: last}
}

// PlayMedia asks the transport to play an audio resource to the caller.
type PlayMedia struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	Loop        int    `json:"loop,omitempty"`
	Preemptible bool   `json:"preemptible,omitempty"`
}

func (PlayMedia) isOutbound() {}

// NewPlayMedia builds a play event for the given source URL.
func NewPlayMedia(source string) PlayMedia {
	return PlayMedia{Type: TypePlay, Source: source}
}

// SendDigits asks the transport to emit DTMF tones on the call leg.
type SendDigits struct {
	Type   string `json:"type"`
	Digits string `json:"digits"`
}

func (SendDigits) isOutbound() {}

// NewSendDigits builds a sendDigits event.
func NewSendDigits(digits string) SendDigits {
	return SendDigits{Type: TypeSendDigits, Digits: digits}
}

// SwitchLanguage changes TTS and/or transcription language mid-call.
type SwitchLanguage struct {
	Type                  string `json:"type"`
	TTSLanguage           string `json:"ttsLanguage,omitempty"`
	TranscriptionLanguage string `json:"transcriptionLanguage,omitempty"`
}

func (SwitchLanguage) isOutbound() {}

// NewSwitchLanguage builds a language event; empty fields are left unchanged
// by the transport.
func NewSwitchLanguage(tts, transcription string) SwitchLanguage {
	return SwitchLanguage{Type: TypeLanguage, TTSLanguage: tts, TranscriptionLanguage: transcription}
}

// EndSession tells the transport to terminate the call.
type EndSession struct {
	Type        string `json:"type"`
	HandoffData string `json:"handoffData,omitempty"`
}

func (EndSession) isOutbound() {}

// NewEndSession builds an end event, optionally carrying handoff data for the
// next TwiML step.
func NewEndSession(handoffData string) EndSession {
	return EndSession{Type: TypeEnd, HandoffData: handoffData}
}

// Pong answers a PingEvent. SequenceNumber echoes the ping's.
type Pong struct {
	Type           string `json:"type"`
	SequenceNumber int    `json:"sequenceNumber"`
	Timestamp      string `json:"timestamp"`
}

func (Pong) isOutbound() {}

// NewPong builds the reply for a ping carrying the given sequence number.
func NewPong(seq int) Pong {
	return Pong{
		Type:           TypePong,
		SequenceNumber: seq,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

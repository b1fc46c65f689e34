package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type discriminators used on the relay wire.
const (
	TypeSetup     = "setup"
	TypePrompt    = "prompt"
	TypeInterrupt = "interrupt"
	TypeDTMF      = "dtmf"
	TypeEnd       = "end"
	TypePing      = "ping"
	TypeError     = "error"
)

// ErrUnknownEventType reports a type discriminator outside the protocol.
var ErrUnknownEventType = errors.New("unknown relay event type")

// InboundEvent is one message received from the relay transport. The concrete
// type is one of SetupEvent, PromptEvent, InterruptEvent, DTMFEvent, EndEvent,
// PingEvent or ErrorEvent.
type InboundEvent interface {
	isInbound()
	// Seq returns the transport sequence number, zero when absent.
	Seq() int
}

type inboundBase struct {
	Type           string `json:"type"`
	SequenceNumber int    `json:"sequenceNumber,omitempty"`
}

func (inboundBase) isInbound() {}

func (b inboundBase) Seq() int { return b.SequenceNumber }

// SetupEvent opens a session; sent once per connection before anything else.
type SetupEvent struct {
	inboundBase
	SessionID        string            `json:"sessionId,omitempty"`
	CallSID          string            `json:"callSid"`
	ParentCallSID    string            `json:"parentCallSid,omitempty"`
	AccountSID       string            `json:"accountSid,omitempty"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Direction        string            `json:"direction,omitempty"`  // inbound, outbound
	CallStatus       string            `json:"callStatus,omitempty"` // in-progress, ringing, etc.
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// PromptEvent carries a transcribed caller utterance.
type PromptEvent struct {
	inboundBase
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`
}

// InterruptEvent reports the caller spoke over the assistant.
type InterruptEvent struct {
	inboundBase
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMs int    `json:"durationUntilInterruptMs,omitempty"`
}

// DTMFEvent carries a single keypad press.
type DTMFEvent struct {
	inboundBase
	Digit string `json:"digit"` // one of 0-9, *, #
}

// EndEvent closes the session from the transport side.
type EndEvent struct {
	inboundBase
	Reason string `json:"reason,omitempty"` // hangup, error, timeout
}

// PingEvent is a transport liveness probe; answered with a Pong echoing the
// sequence number.
type PingEvent struct {
	inboundBase
}

// ErrorEvent reports a transport-side failure. Informational only.
type ErrorEvent struct {
	inboundBase
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
}

// DecodeInbound parses one wire message into its concrete event type.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode relay event: %w", err)
	}

	var (
		ev  InboundEvent
		err error
	)
	switch probe.Type {
	case TypeSetup:
		var e SetupEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypePrompt:
		var e PromptEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeInterrupt:
		var e InterruptEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeDTMF:
		var e DTMFEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeEnd:
		var e EndEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypePing:
		var e PingEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case TypeError:
		var e ErrorEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, probe.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", probe.Type, err)
	}
	return ev, nil
}

package ai

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies a backend failure. The class is logged even when the
// spoken apology reads the same, so provider incidents stay visible.
type Kind string

const (
	KindAuth      Kind = "authentication"
	KindRateLimit Kind = "rate_limit"
	KindTimeout   Kind = "timeout"
	KindServer    Kind = "server"
	KindGeneric   Kind = "generic"
)

// Classify maps a backend error onto its failure class. Provider errors
// arrive as wrapped text, so matching is best-effort over the message.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "api key", "unauthorized", "authentication", "forbidden", "401", "403"):
		return KindAuth
	case containsAny(msg, "rate limit", "too many requests", "quota", "429"):
		return KindRateLimit
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "internal server", "bad gateway", "service unavailable", "overloaded", "500", "502", "503", "529"):
		return KindServer
	default:
		return KindGeneric
	}
}

// Apology returns the spoken fallback for a failure class.
func Apology(kind Kind) string {
	switch kind {
	case KindAuth:
		return "I'm sorry, I'm having trouble reaching my knowledge service right now. Please try again in a little while."
	case KindRateLimit:
		return "I'm sorry, I'm handling a lot of requests at the moment. Please give me a second and ask again."
	case KindTimeout:
		return "I'm sorry, that took longer than expected. Could you say that again?"
	case KindServer:
		return "I'm sorry, something went wrong on my end. Let's try that once more."
	default:
		return "I'm sorry, I ran into a problem with that. Could you try again?"
	}
}

// SpokenApology classifies err and returns the class with its apology text.
func SpokenApology(err error) (Kind, string) {
	kind := Classify(err)
	return kind, Apology(kind)
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

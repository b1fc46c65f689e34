package dtmf

// Action identifies what a matched command does on the call.
type Action string

const (
	ActionSay        Action = "say"
	ActionMenu       Action = "menu"
	ActionRepeat     Action = "repeat"
	ActionOperator   Action = "operator"
	ActionEndCall    Action = "end_call"
	ActionSendDigits Action = "send_digits"
	ActionPlay       Action = "play"
)

// Command maps a keypad sequence to an action. Registered sequences may be
// prefixes of one another; the matcher disambiguates while digits arrive.
type Command struct {
	Sequence    string
	Action      Action
	Description string // clause read out by the menu, e.g. "to reach an operator"
	Response    string // spoken when matched
	Digits      string // payload for ActionSendDigits
	Source      string // payload for ActionPlay

	// Handler optionally computes the spoken response at match time. It
	// receives the last assistant utterance and overrides Response.
	Handler func(lastAssistant string) string
}

// Outcome classifies the effect of one keypress.
type Outcome int

const (
	Matched Outcome = iota
	Pending
	NoMatch
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Pending:
		return "pending"
	case NoMatch:
		return "no_match"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Result tells the protocol router what to do after a keypress. Say is empty
// for silent outcomes.
type Result struct {
	Outcome Outcome
	Say     string
	EndCall bool
	Digits  string // DTMF tones to replay on the call leg
	Play    string // audio source to play
}

// Spoken responses for the fixed matcher behaviors.
const (
	pendingResponse         = "Continue entering digits."
	invalidDigitResponse    = "That's not a valid option. Press star to hear available commands."
	invalidSequenceResponse = "That sequence isn't recognized. Press star to hear available commands."
	clearAckResponse        = "Okay, I've cleared your input."
	repeatEmptyResponse     = "No previous message to repeat."
)

func defaultCommands() []Command {
	return []Command{
		{
			Sequence:    "*",
			Action:      ActionMenu,
			Description: "to hear this menu",
		},
		{
			Sequence:    "1",
			Action:      ActionSay,
			Description: "for information about this assistant",
			Response:    "This is an automated voice assistant. You can speak naturally at any time, or press star to hear keypad options.",
		},
		{
			Sequence:    "9",
			Action:      ActionRepeat,
			Description: "to repeat the last message",
		},
		{
			Sequence:    "0",
			Action:      ActionOperator,
			Description: "to reach an operator",
			Response:    "I'll connect you with an operator. Please hold.",
		},
	}
}

package dtmf

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidSequence reports a command sequence that cannot be registered.
var ErrInvalidSequence = errors.New("invalid dtmf sequence")

// Matcher recognizes buffered multi-digit command sequences. The caller owns
// the per-call digit buffer; the matcher owns the command table. Safe for
// concurrent use across connections.
type Matcher struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string
}

// NewMatcher returns a matcher preloaded with the default command table.
func NewMatcher() *Matcher {
	m := &Matcher{commands: make(map[string]Command)}
	for _, cmd := range defaultCommands() {
		m.commands[cmd.Sequence] = cmd
		m.order = append(m.order, cmd.Sequence)
	}
	return m
}

// Register adds a command to the table, replacing any existing command with
// the same sequence. The pound key is reserved and cannot be registered.
func (m *Matcher) Register(cmd Command) error {
	if cmd.Sequence == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSequence)
	}
	for i := 0; i < len(cmd.Sequence); i++ {
		c := cmd.Sequence[i]
		if c == '#' {
			return fmt.Errorf("%w: %q contains reserved #", ErrInvalidSequence, cmd.Sequence)
		}
		if c != '*' && (c < '0' || c > '9') {
			return fmt.Errorf("%w: %q", ErrInvalidSequence, cmd.Sequence)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[cmd.Sequence]; !exists {
		m.order = append(m.order, cmd.Sequence)
	}
	m.commands[cmd.Sequence] = cmd
	return nil
}

// Commands returns the registered table in registration order.
func (m *Matcher) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.order))
	for _, seq := range m.order {
		out = append(out, m.commands[seq])
	}
	return out
}

// Press processes one keypress against the current buffer and returns the
// result plus the new buffer contents. Reserved behaviors run before the
// table: # always ends the call, and * pressed while the buffer already
// holds * clears the buffer with an acknowledgement. Digits outside 0-9*#
// are rejected without touching the buffer.
func (m *Matcher) Press(digit, buffer, lastAssistant string) (Result, string) {
	if len(digit) != 1 || !validDigit(digit[0]) {
		return Result{Outcome: Rejected}, buffer
	}
	d := digit[0]

	if d == '#' {
		return Result{Outcome: Matched, EndCall: true}, ""
	}
	if d == '*' && buffer == "*" {
		return Result{Outcome: Matched, Say: clearAckResponse}, ""
	}

	buffer += string(d)

	m.mu.RLock()
	defer m.mu.RUnlock()

	cmd, exact := m.commands[buffer]
	switch {
	case m.hasStrictExtension(buffer):
		// An exact match still waits while a longer sequence could follow.
		return Result{Outcome: Pending, Say: pendingResponse}, buffer
	case exact:
		return m.run(cmd, lastAssistant), ""
	case len(buffer) == 1:
		return Result{Outcome: NoMatch, Say: invalidDigitResponse}, ""
	default:
		return Result{Outcome: NoMatch, Say: invalidSequenceResponse}, ""
	}
}

func (m *Matcher) run(cmd Command, lastAssistant string) Result {
	res := Result{Outcome: Matched}
	switch cmd.Action {
	case ActionMenu:
		res.Say = m.menuLocked()
	case ActionRepeat:
		if lastAssistant == "" {
			res.Say = repeatEmptyResponse
		} else {
			res.Say = lastAssistant
		}
	case ActionEndCall:
		res.EndCall = true
		res.Say = cmd.Response
	case ActionSendDigits:
		res.Digits = cmd.Digits
		res.Say = cmd.Response
	case ActionPlay:
		res.Play = cmd.Source
		res.Say = cmd.Response
	default:
		res.Say = cmd.Response
	}
	if cmd.Handler != nil {
		res.Say = cmd.Handler(lastAssistant)
	}
	return res
}

// menuLocked builds the spoken option list. Callers hold at least a read lock.
func (m *Matcher) menuLocked() string {
	var b strings.Builder
	for _, seq := range m.order {
		cmd := m.commands[seq]
		if cmd.Action == ActionMenu || cmd.Description == "" {
			continue
		}
		b.WriteString("Press ")
		b.WriteString(spokenSequence(seq))
		b.WriteString(" ")
		b.WriteString(cmd.Description)
		b.WriteString(". ")
	}
	b.WriteString("Press star star to clear your input. Press pound to end the call.")
	return b.String()
}

func (m *Matcher) hasStrictExtension(buffer string) bool {
	for seq := range m.commands {
		if len(seq) > len(buffer) && strings.HasPrefix(seq, buffer) {
			return true
		}
	}
	return false
}

func validDigit(c byte) bool {
	return c == '*' || c == '#' || (c >= '0' && c <= '9')
}

func spokenSequence(seq string) string {
	words := make([]string, 0, len(seq))
	for i := 0; i < len(seq); i++ {
		switch seq[i] {
		case '*':
			words = append(words, "star")
		case '#':
			words = append(words, "pound")
		default:
			words = append(words, string(seq[i]))
		}
	}
	return strings.Join(words, " ")
}

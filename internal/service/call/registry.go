package call

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relayvox/relayvox/internal/model/call"
)

// historyCap bounds the stored transcript per call; oldest entries drop first.
const historyCap = 20

var (
	ErrCallIDRequired = errors.New("call id is required")
	ErrSessionExists  = errors.New("session already exists")
)

type streamHandle struct {
	cancel context.CancelFunc
	token  string
}

// Registry is the keyed store of live call sessions. One instance is built at
// startup and handed to the router and handlers; every operation is atomic
// per call id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*call.Session
	streams  map[string]*streamHandle
	started  int64
	ended    int64
}

// Metrics summarizes registry activity for the health endpoint.
type Metrics struct {
	Active       int   `json:"activeCalls"`
	TotalStarted int64 `json:"totalStarted"`
	TotalEnded   int64 `json:"totalEnded"`
}

// NewRegistry bootstraps the in-memory session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*call.Session),
		streams:  make(map[string]*streamHandle),
	}
}

// Create provisions a session for a new call. At most one session may exist
// per call id.
func (r *Registry) Create(id, from, to string) (call.Session, error) {
	if id == "" {
		return call.Session{}, ErrCallIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return call.Session{}, ErrSessionExists
	}

	now := time.Now().UTC()
	sess := &call.Session{
		ID:           id,
		From:         from,
		To:           to,
		StartTime:    now,
		LastActivity: now,
		History:      make([]call.ConversationEntry, 0, 8),
		Active:       true,
	}
	r.sessions[id] = sess
	r.started++

	return snapshot(sess), nil
}

// Get returns a copy of the session, history included.
func (r *Registry) Get(id string) (call.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return call.Session{}, false
	}
	return snapshot(sess), true
}

// Active returns copies of all live sessions ordered by start time.
func (r *Registry) Active() []call.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]call.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, snapshot(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// AppendHistory adds one transcript turn. No-op when the session is absent or
// inactive; reports whether the entry was stored.
func (r *Registry) AppendHistory(id, role, content string) bool {
	return r.AppendEntry(id, call.ConversationEntry{Role: role, Content: content})
}

// AppendEntry adds a prepared transcript entry, assigning its id and
// timestamp when unset, and trims the history to the cap.
func (r *Registry) AppendEntry(id string, entry call.ConversationEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || !sess.Active {
		return false
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	sess.History = append(sess.History, entry)
	if excess := len(sess.History) - historyCap; excess > 0 {
		sess.History = sess.History[excess:]
	}
	sess.LastActivity = time.Now().UTC()
	return true
}

// MarkLastInterrupted flags the newest assistant entry as cut off. When the
// transport reports the utterance the caller actually heard, the stored text
// is replaced with it.
func (r *Registry) MarkLastInterrupted(id, heardUtterance string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || !sess.Active {
		return false
	}

	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Role != call.RoleAssistant {
			continue
		}
		sess.History[i].Interrupted = true
		if heardUtterance != "" {
			sess.History[i].Content = heardUtterance
		}
		return true
	}
	return false
}

// SetDigitBuffer stores the DTMF buffer produced by the matcher.
func (r *Registry) SetDigitBuffer(id, buffer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || !sess.Active {
		return false
	}
	sess.DTMFBuffer = buffer
	return true
}

// Touch records activity on the session and advances its sequence number.
// Sequence numbers only move forward.
func (r *Registry) Touch(id string, seq int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || !sess.Active {
		return false
	}
	sess.LastActivity = time.Now().UTC()
	if seq > sess.SequenceNumber {
		sess.SequenceNumber = seq
	}
	return true
}

// SetStreamCancel registers cancel as the session's outstanding stream
// handle, cancelling and replacing any previous one so at most one stream is
// ever live per call. The returned token identifies the stream for
// ClearStreamCancel.
func (r *Registry) SetStreamCancel(id string, cancel context.CancelFunc) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || !sess.Active {
		return "", false
	}

	if prev, ok := r.streams[id]; ok {
		prev.cancel()
	}
	token := uuid.NewString()
	r.streams[id] = &streamHandle{cancel: cancel, token: token}
	return token, true
}

// CancelStream fires the outstanding stream handle, if any.
func (r *Registry) CancelStream(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.streams[id]
	if !ok {
		return false
	}
	h.cancel()
	delete(r.streams, id)
	return true
}

// ClearStreamCancel drops the handle after a stream finishes on its own. The
// token guard keeps a finished stream from clobbering a newer one's handle.
func (r *Registry) ClearStreamCancel(id, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.streams[id]; ok && h.token == token {
		delete(r.streams, id)
	}
}

// End closes the session: cancels any outstanding stream, marks it inactive,
// removes it from the live set and returns the end-of-call summary.
func (r *Registry) End(id, reason string) (call.Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return call.Summary{}, false
	}

	if h, ok := r.streams[id]; ok {
		h.cancel()
		delete(r.streams, id)
	}

	sess.Active = false
	delete(r.sessions, id)
	r.ended++

	return call.Summary{
		ID:       sess.ID,
		From:     sess.From,
		To:       sess.To,
		Reason:   reason,
		Duration: time.Now().UTC().Sub(sess.StartTime),
		Messages: len(sess.History),
	}, true
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Metrics reports aggregate activity counters.
func (r *Registry) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Metrics{Active: len(r.sessions), TotalStarted: r.started, TotalEnded: r.ended}
}

// Reset cancels every outstanding stream and drops all sessions. Used on
// shutdown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, h := range r.streams {
		h.cancel()
		delete(r.streams, id)
	}
	for id, sess := range r.sessions {
		sess.Active = false
		delete(r.sessions, id)
		r.ended++
	}
}

func snapshot(sess *call.Session) call.Session {
	out := *sess
	out.History = make([]call.ConversationEntry, len(sess.History))
	copy(out.History, sess.History)
	return out
}

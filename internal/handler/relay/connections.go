package relay

import (
	"log"
	"sync"

	"github.com/relayvox/relayvox/internal/model/relay"
)

// Tracker maps live call ids to their connection writers so a call can be
// reached from outside its own read loop: the ops API force-ends calls and
// shutdown drains every connection.
type Tracker struct {
	mu      sync.RWMutex
	writers map[string]*eventWriter
}

// NewTracker builds an empty connection tracker.
func NewTracker() *Tracker {
	return &Tracker{writers: make(map[string]*eventWriter)}
}

// Add registers the connection serving a call. A stale connection for the
// same call is closed first.
func (t *Tracker) Add(callID string, w *eventWriter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.writers[callID]; ok && old != w {
		log.Printf("[relay] replacing stale connection call=%s", callID)
		old.Close()
	}
	t.writers[callID] = w
}

// Remove forgets the call's connection without closing it.
func (t *Tracker) Remove(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.writers, callID)
}

// Count reports how many connections are tracked.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.writers)
}

// EndCall tells the transport to terminate the call and drops the tracked
// connection. Reports whether a live connection existed. The read loop
// finishes its own teardown when the transport closes the socket.
func (t *Tracker) EndCall(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.writers[callID]
	if !ok {
		return false
	}
	if err := w.Send(relay.NewEndSession("")); err != nil {
		log.Printf("[relay] write end failed call=%s: %v", callID, err)
	}
	delete(t.writers, callID)
	return true
}

// CloseAll ends every tracked connection. Each caller hears the session end
// before the socket closes. Used on shutdown.
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for callID, w := range t.writers {
		if err := w.Send(relay.NewEndSession("")); err != nil {
			log.Printf("[relay] write end failed call=%s: %v", callID, err)
		}
		w.Close()
		delete(t.writers, callID)
	}
	log.Printf("[relay] all relay connections closed")
}

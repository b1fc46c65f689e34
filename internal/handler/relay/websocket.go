package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relayvox/relayvox/internal/model/call"
	"github.com/relayvox/relayvox/internal/model/relay"
	"github.com/relayvox/relayvox/internal/service/ai"
	"github.com/relayvox/relayvox/internal/service/dtmf"
	"github.com/relayvox/relayvox/internal/voice"
)

// Spoken fallbacks owned by the router rather than the backend.
const (
	genericApology      = "I'm sorry, something unexpected went wrong. Could you say that again?"
	backendUnavailable  = "I'm sorry, I'm not able to answer questions right now. You can still use the keypad, or press pound to end the call."
	transportEndedLabel = "transport-closed"
)

// eventWriter serializes writes to one connection: the read loop, the
// completion goroutine and the ops API may all send events on it.
type eventWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *eventWriter) Send(ev relay.OutboundEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(ev)
}

func (w *eventWriter) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *eventWriter) Close() error {
	return w.conn.Close()
}

// connState tracks which call a connection is bound to. Only the read loop
// touches it; goroutines receive plain copies of what they need.
type connState struct {
	callID string
	lang   string
	writer *eventWriter
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[relay] new connection from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	state := &connState{lang: h.cfg.Language, writer: &eventWriter{conn: conn}}
	defer h.teardown(state)

	go h.pingLoop(ctx, state.writer)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[relay] read error call=%s: %v", state.callID, err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			h.dispatch(ctx, state, data)
		}
	}
}

// dispatch decodes and routes one inbound event. A panicking handler must
// never take the connection down, so recovery converts it into a generic
// spoken apology.
func (h *Handler) dispatch(ctx context.Context, state *connState, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] handler panic call=%s: %v\n%s", state.callID, rec, debug.Stack())
			h.say(state.writer, state.callID, genericApology)
		}
	}()

	ev, err := relay.DecodeInbound(data)
	if err != nil {
		log.Printf("[relay] dropping event call=%s: %v", state.callID, err)
		return
	}

	switch ev := ev.(type) {
	case relay.PingEvent:
		// Liveness only; never touches session state.
		if err := state.writer.Send(relay.NewPong(ev.Seq())); err != nil {
			log.Printf("[relay] write pong failed: %v", err)
		}
	case relay.SetupEvent:
		h.handleSetup(state, ev)
	case relay.PromptEvent:
		h.handlePrompt(ctx, state, ev)
	case relay.InterruptEvent:
		h.handleInterrupt(state, ev)
	case relay.DTMFEvent:
		h.handleDTMF(state, ev)
	case relay.EndEvent:
		h.handleEnd(state, ev)
	case relay.ErrorEvent:
		log.Printf("[relay] transport error call=%s code=%s: %s", state.callID, ev.Code, ev.Description)
	}
}

func (h *Handler) handleSetup(state *connState, ev relay.SetupEvent) {
	if state.callID != "" {
		log.Printf("[relay] duplicate setup on connection call=%s, dropping", state.callID)
		return
	}

	sess, err := h.registry.Create(ev.CallSID, ev.From, ev.To)
	if err != nil {
		log.Printf("[relay] setup rejected callSid=%q: %v", ev.CallSID, err)
		return
	}

	state.callID = sess.ID
	h.registry.Touch(sess.ID, ev.Seq())
	h.tracker.Add(sess.ID, state.writer)

	log.Printf("[relay] call started call=%s from=%s to=%s direction=%s status=%s",
		sess.ID, ev.From, ev.To, ev.Direction, ev.CallStatus)
}

func (h *Handler) handlePrompt(ctx context.Context, state *connState, ev relay.PromptEvent) {
	if state.callID == "" {
		log.Printf("[relay] prompt before setup, dropping")
		return
	}
	sess, ok := h.registry.Get(state.callID)
	if !ok || !sess.Active {
		log.Printf("[relay] prompt for ended session call=%s, dropping", state.callID)
		return
	}

	h.registry.Touch(state.callID, ev.Seq())
	if ev.Lang != "" && ev.Lang != state.lang {
		// Follow the caller's language so replies are read in kind.
		state.lang = ev.Lang
		if err := state.writer.Send(relay.NewSwitchLanguage(ev.Lang, "")); err != nil {
			log.Printf("[relay] write language failed call=%s: %v", state.callID, err)
		}
		log.Printf("[relay] language switched call=%s lang=%s", state.callID, ev.Lang)
	}

	userText := strings.TrimSpace(ev.VoicePrompt)
	if userText == "" {
		return
	}

	log.Printf("[relay] prompt call=%s last=%t chars=%d", state.callID, ev.Last, len(userText))

	if h.ai == nil {
		h.say(state.writer, state.callID, backendUnavailable)
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	token, ok := h.registry.SetStreamCancel(state.callID, cancel)
	if !ok {
		cancel()
		return
	}

	go h.complete(streamCtx, state.writer, state.callID, sess.History, userText, token)
}

// complete runs one completion turn off the read loop so interrupts stay
// responsive. All session access goes through the registry.
func (h *Handler) complete(ctx context.Context, w *eventWriter, callID string, history []call.ConversationEntry, userText, token string) {
	defer h.registry.ClearStreamCancel(callID, token)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] completion panic call=%s: %v\n%s", callID, rec, debug.Stack())
			h.say(w, callID, genericApology)
		}
	}()

	if h.ai.Streaming() {
		h.completeStreaming(ctx, w, callID, history, userText)
		return
	}
	h.completeBlocking(ctx, w, callID, history, userText)
}

func (h *Handler) completeStreaming(ctx context.Context, w *eventWriter, callID string, history []call.ConversationEntry, userText string) {
	full, err := h.ai.RespondStream(ctx, callID, history, userText, func(chunk string) error {
		return w.Send(relay.NewTextToken(chunk, false))
	})

	switch {
	case err == nil:
		if err := w.Send(relay.NewTextToken("", true)); err != nil {
			log.Printf("[relay] write final token failed call=%s: %v", callID, err)
		}
		h.registry.AppendHistory(callID, call.RoleUser, userText)
		h.registry.AppendHistory(callID, call.RoleAssistant, full)
	case errors.Is(err, context.Canceled):
		log.Printf("[relay] stream cancelled call=%s after %d chars", callID, len(full))
		h.registry.AppendHistory(callID, call.RoleUser, userText)
		if full != "" {
			h.registry.AppendEntry(callID, call.ConversationEntry{
				Role:        call.RoleAssistant,
				Content:     full,
				Interrupted: true,
			})
		}
	default:
		kind, apology := ai.SpokenApology(err)
		log.Printf("[relay] completion failed call=%s kind=%s: %v", callID, kind, err)
		h.say(w, callID, apology)
	}
}

func (h *Handler) completeBlocking(ctx context.Context, w *eventWriter, callID string, history []call.ConversationEntry, userText string) {
	full, err := h.ai.Respond(ctx, callID, history, userText)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("[relay] completion cancelled call=%s", callID)
			h.registry.AppendHistory(callID, call.RoleUser, userText)
			return
		}
		kind, apology := ai.SpokenApology(err)
		log.Printf("[relay] completion failed call=%s kind=%s: %v", callID, kind, err)
		h.say(w, callID, apology)
		return
	}

	h.registry.AppendHistory(callID, call.RoleUser, userText)
	h.registry.AppendHistory(callID, call.RoleAssistant, full)
	h.say(w, callID, full)
}

func (h *Handler) handleInterrupt(state *connState, ev relay.InterruptEvent) {
	if state.callID == "" {
		return
	}
	h.registry.Touch(state.callID, ev.Seq())

	cancelled := h.registry.CancelStream(state.callID)
	if !cancelled {
		// No live stream means the transport was still reading out a finished
		// reply; truncate that entry to what the caller actually heard.
		h.registry.MarkLastInterrupted(state.callID, strings.TrimSpace(ev.UtteranceUntilInterrupt))
	}

	log.Printf("[relay] interrupt call=%s streamCancelled=%t heardMs=%d",
		state.callID, cancelled, ev.DurationUntilInterruptMs)
}

func (h *Handler) handleDTMF(state *connState, ev relay.DTMFEvent) {
	if !h.cfg.DTMFEnabled {
		log.Printf("[relay] dtmf disabled, dropping digit call=%s", state.callID)
		return
	}
	if state.callID == "" {
		log.Printf("[relay] dtmf before setup, dropping")
		return
	}
	sess, ok := h.registry.Get(state.callID)
	if !ok || !sess.Active {
		log.Printf("[relay] dtmf for ended session call=%s, dropping", state.callID)
		return
	}

	h.registry.Touch(state.callID, ev.Seq())

	result, buffer := h.matcher.Press(ev.Digit, sess.DTMFBuffer, sess.LastAssistantText())
	h.registry.SetDigitBuffer(state.callID, buffer)

	log.Printf("[relay] dtmf call=%s digit=%q outcome=%s buffer=%q",
		state.callID, ev.Digit, result.Outcome, buffer)

	if result.Outcome == dtmf.Rejected {
		return
	}

	if result.Digits != "" {
		if err := state.writer.Send(relay.NewSendDigits(result.Digits)); err != nil {
			log.Printf("[relay] write sendDigits failed call=%s: %v", state.callID, err)
		}
	}
	if result.Play != "" {
		if err := state.writer.Send(relay.NewPlayMedia(result.Play)); err != nil {
			log.Printf("[relay] write play failed call=%s: %v", state.callID, err)
		}
	}
	if result.Say != "" {
		h.say(state.writer, state.callID, result.Say)
	}
	if result.EndCall {
		h.endCall(state, "dtmf")
	}
}

func (h *Handler) handleEnd(state *connState, ev relay.EndEvent) {
	if state.callID == "" {
		return
	}
	reason := ev.Reason
	if reason == "" {
		reason = "hangup"
	}

	h.tracker.Remove(state.callID)
	if summary, ok := h.registry.End(state.callID, reason); ok {
		logSummary(summary)
	}
	state.callID = ""
}

// endCall terminates the call from our side: the transport gets an end event
// before the session is released.
func (h *Handler) endCall(state *connState, reason string) {
	if state.callID == "" {
		return
	}
	if err := state.writer.Send(relay.NewEndSession("")); err != nil {
		log.Printf("[relay] write end failed call=%s: %v", state.callID, err)
	}

	h.tracker.Remove(state.callID)
	if summary, ok := h.registry.End(state.callID, reason); ok {
		logSummary(summary)
	}
	state.callID = ""
}

// teardown releases everything a dying connection still holds. A session
// that already ended via an end event is a no-op here.
func (h *Handler) teardown(state *connState) {
	if state.callID == "" {
		return
	}
	h.tracker.Remove(state.callID)
	if summary, ok := h.registry.End(state.callID, transportEndedLabel); ok {
		logSummary(summary)
	}
	state.callID = ""
}

// say splits text into speakable chunks and sends them as one closed reply.
func (h *Handler) say(w *eventWriter, callID, text string) {
	chunks := voice.Speakable(text, h.cfg.MaxChunk)
	for i, chunk := range chunks {
		if err := w.Send(relay.NewTextToken(chunk, i == len(chunks)-1)); err != nil {
			log.Printf("[relay] write text failed call=%s: %v", callID, err)
			return
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, w *eventWriter) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Ping(); err != nil {
				return
			}
		}
	}
}

func logSummary(summary call.Summary) {
	log.Printf("[relay] call ended call=%s reason=%s duration=%s messages=%d",
		summary.ID, summary.Reason, summary.Duration.Round(time.Millisecond), summary.Messages)
}

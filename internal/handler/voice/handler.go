package voice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/pkg/utils"
)

// Handler answers the inbound-call webhook with TwiML that connects the call
// to the relay websocket.
type Handler struct {
	cfg config.RelayConfig
}

// New creates the voice webhook handler.
func New(cfg config.RelayConfig) *Handler {
	return &Handler{cfg: cfg}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/twiml", h.handleTwiML)
}

type conversationRelay struct {
	XMLName         xml.Name `xml:"ConversationRelay"`
	URL             string   `xml:"url,attr"`
	WelcomeGreeting string   `xml:"welcomeGreeting,attr,omitempty"`
	Language        string   `xml:"language,attr,omitempty"`
	Voice           string   `xml:"voice,attr,omitempty"`
	DTMFDetection   bool     `xml:"dtmfDetection,attr"`
}

type connect struct {
	XMLName xml.Name `xml:"Connect"`
	Relay   conversationRelay
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect connect
}

func (h *Handler) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if h.cfg.TwilioAuthToken != "" && !h.validSignature(r) {
		log.Printf("[voice] rejected webhook with bad signature from %s", r.RemoteAddr)
		utils.RespondError(w, http.StatusForbidden, "invalid signature")
		return
	}

	doc := twimlResponse{
		Connect: connect{
			Relay: conversationRelay{
				URL:             h.websocketURL(r),
				WelcomeGreeting: h.cfg.Greeting,
				Language:        h.cfg.Language,
				Voice:           h.cfg.Voice,
				DTMFDetection:   h.cfg.DTMFEnabled,
			},
		},
	}

	log.Printf("[voice] answering webhook callSid=%s url=%s", r.PostFormValue("CallSid"), doc.Connect.Relay.URL)
	utils.RespondXML(w, http.StatusOK, doc)
}

// websocketURL prefers the configured public address. Absent one, it derives
// the address from the request so local setups work without configuration.
func (h *Handler) websocketURL(r *http.Request) string {
	if h.cfg.WSURL != "" {
		return h.cfg.WSURL
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}

// validSignature checks the X-Twilio-Signature header: an HMAC-SHA1 of the
// request URL concatenated with the sorted form parameters, keyed by the
// account auth token and base64 encoded.
func (h *Handler) validSignature(r *http.Request) bool {
	sig := r.Header.Get("X-Twilio-Signature")
	if sig == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(requestURL(r))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(r.PostForm.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(h.cfg.TwilioAuthToken))
	mac.Write([]byte(b.String()))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(want))
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

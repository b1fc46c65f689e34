package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/internal/handler/relay"
	callService "github.com/relayvox/relayvox/internal/service/call"
	"github.com/relayvox/relayvox/internal/service/dtmf"
)

func newTestRouter() (http.Handler, *callService.Registry) {
	registry := callService.NewRegistry()
	cfg := config.RelayConfig{Language: "en-US", DTMFEnabled: true, MaxChunk: 280}
	router := NewRouter(cfg, registry, dtmf.NewMatcher(), nil, relay.NewTracker())
	return router, registry
}

func TestHealthzReportsMetrics(t *testing.T) {
	router, registry := newTestRouter()
	registry.Create("CA1", "+15105551111", "+15105552222")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var out struct {
		Status      string `json:"status"`
		ActiveCalls int    `json:"activeCalls"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out.Status != "ok" || out.ActiveCalls != 1 {
		t.Fatalf("unexpected health payload: %+v", out)
	}
}

func TestRouterMountsCallAPI(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRouterMountsVoiceWebhook(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/twiml", strings.NewReader("CallSid=CA1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "<ConversationRelay") {
		t.Fatalf("twiml body missing relay element: %q", resp.Body.String())
	}
}

func TestRouterAnswersPreflight(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/calls", nil)
	req.Header.Set("Origin", "http://dashboard.example.com")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("missing CORS headers")
	}
}

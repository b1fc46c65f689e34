package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/internal/handler"
	"github.com/relayvox/relayvox/internal/handler/relay"
	"github.com/relayvox/relayvox/internal/service/ai"
	callservice "github.com/relayvox/relayvox/internal/service/call"
	"github.com/relayvox/relayvox/internal/service/dtmf"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	registry := callservice.NewRegistry()
	tracker := relay.NewTracker()

	matcher := dtmf.NewMatcher()
	for _, custom := range cfg.Relay.CustomCommands {
		cmd := dtmf.Command{
			Sequence:    custom.Sequence,
			Action:      dtmf.ActionSay,
			Description: custom.Description,
			Response:    custom.Response,
		}
		if err := matcher.Register(cmd); err != nil {
			log.Printf("warning: skipping dtmf command %q: %v", custom.Sequence, err)
		}
	}

	// Initialize the completion backend. completer stays a nil interface when
	// the backend is unavailable so the relay speaks its fallback notice.
	var completer relay.Completer
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI, cfg.Relay.FlushWords)
		if err != nil {
			log.Printf("warning: failed to initialize completion service: %v", err)
			log.Println("continuing without the completion backend")
		} else {
			completer = aiSvc
			log.Println("completion service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, running without the completion backend")
	}

	router := handler.NewRouter(cfg.Relay, registry, matcher, completer, tracker)

	drain := func() {
		tracker.CloseAll()
		registry.Reset()
	}
	startServer(ctx, cfg.Server, router, drain)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, drain func()) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("RelayVox backend listening on %s", addr)
	if err := runServer(ctx, srv, drain); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, drain func()) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Relay connections are hijacked from the HTTP server, so Shutdown
		// alone never closes them. Drain first.
		drain()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

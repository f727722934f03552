package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-hub/api"
	"chat-hub/auth"
	"chat-hub/domain/event"
	"chat-hub/logs"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/search"
	"chat-hub/transport/ws"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes every component, serves until a termination signal,
// and returns the first fatal error so main owns the exit code. Keeping
// the wiring here means all defers fire before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.FromString(config.LogLevel)

	// 2. Durable storage (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Full-text index (Bluge). Empty path keeps it in memory.
	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 4. Repositories
	users := repositories.NewUserRepository(db, log)
	messages, err := repositories.NewMessageRepository(db, log, config.LimitMessages)
	if err != nil {
		return fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messages.Close() }()
	groups, err := repositories.NewGroupRepository(db, log)
	if err != nil {
		return fmt.Errorf("group repository: %w", err)
	}
	defer func() { _ = groups.Close() }()
	reactions := repositories.NewReactionRepository(db, log)
	media, err := repositories.NewMediaRepository(db, log)
	if err != nil {
		return fmt.Errorf("media repository: %w", err)
	}
	defer func() { _ = media.Close() }()

	// 5. Moderation
	var words []string
	if config.CensoredWordsPath != "" {
		words, err = moderation.LoadWords(config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("loading censored words: %w", err)
		}
	}
	moderator, err := moderation.NewModerator(words, config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("moderator: %w", err)
	}

	// 6. Runtime: metrics, presence, registry, router
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	presence := runtime.NewPresence()
	registry := runtime.NewRegistry(log, metrics)
	events := make(chan event.DomainEvent, config.BufferSize)
	router := runtime.NewRouter(
		log, metrics, registry, presence,
		users, messages, groups, reactions,
		&moderator, events, config.RelaySenderDevices,
	)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Background workers under supervision
	fanout := workers.NewEventFanout(log, events,
		workers.NewLogSink(log),
		observability.NewSink(metrics),
		index,
	)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(fanout)
	go sup.Run(ctx)

	// 9. Transport
	verifier, err := buildVerifier(config)
	if err != nil {
		return err
	}
	wsHandler := ws.NewHandler(log, router, verifier, config.ConnectionBufferSize)
	apiHandler := api.NewHandler(log, users, messages, groups, reactions, media, index)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.Recoverer)
	mux.Mount("/api", apiHandler.Routes())
	mux.Handle("/ws", wsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  0, // long-lived WebSocket reads manage their own deadlines
		WriteTimeout: 0,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "auth_mode", config.AuthMode)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Forced shutdown", "error", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}

// buildVerifier selects the credential check from AUTH_MODE.
func buildVerifier(config Config) (auth.Verifier, error) {
	switch config.AuthMode {
	case "insecure":
		return auth.Insecure{}, nil
	case "apikey":
		if config.WebsocketAPIKey == "" {
			return nil, fmt.Errorf("AUTH_MODE=apikey requires WEBSOCKET_API_KEY")
		}
		return auth.APIKey{Key: config.WebsocketAPIKey}, nil
	case "token":
		if config.TokenSecret == "" {
			return nil, fmt.Errorf("AUTH_MODE=token requires TOKEN_SECRET")
		}
		return auth.Token{Secret: []byte(config.TokenSecret)}, nil
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", config.AuthMode)
	}
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/internal/config"
	"chat-relay/internal/registry"
	"chat-relay/internal/server"
	"chat-relay/internal/store"
)

// Exit codes to provide meaningful status to the operating system or service
// manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: call run() and translate it to an OS exit code,
	// so every defer in run() executes before the process dies.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// A .env file is optional; the real environment always wins.
	_ = godotenv.Load()

	var cfg config.Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	options := badger.DefaultOptions(cfg.StoragePath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("opening message store: %w", err)
	}
	defer func() {
		// Ensures the database lock is released and buffers are flushed
		// before the process exits.
		logger.Info("closing message store")
		_ = db.Close()
	}()

	messageStore := store.NewMessageStore(db, logger)
	connections := registry.New()
	hub := server.NewHub(messageStore, connections, logger, cfg.MaxMessageSize)
	go hub.Run()
	logger.Info("hub started and ready to manage WebSocket connections")

	policy := server.NewOriginPolicy(cfg.Origins(), logger)
	mux := server.SetupRoutes(hub, messageStore, policy, logger)
	httpServer := server.CreateServer(cfg.Addr, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, fmt.Errorf("server error: %w", err)
		}
	case sig := <-stop:
		logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		return exitRuntime, fmt.Errorf("HTTP shutdown: %w", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return exitRuntime, fmt.Errorf("hub shutdown: %w", err)
	}

	return exitOK, nil
}

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/QsSama-W/nimingChat/internal/auth"
	"github.com/QsSama-W/nimingChat/internal/chat"
	"github.com/QsSama-W/nimingChat/internal/config"
	httpHandler "github.com/QsSama-W/nimingChat/internal/delivery/http"
	"github.com/QsSama-W/nimingChat/internal/delivery/ws"
	"github.com/QsSama-W/nimingChat/internal/store"
	"github.com/QsSama-W/nimingChat/internal/usecase"
)

const housekeepingInterval = time.Minute

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	cfg := config.LoadFromEnv()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, enabled := cfg.SlogLevel()
	if !enabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.Password == config.DefaultPassword && cfg.PasswordHash == "" {
		logger.Warn("using the default chat password; set CHAT_PASSWORD or CHAT_PASSWORD_HASH")
	}
	if cfg.SessionSecret == "" {
		logger.Info("SESSION_SECRET not set, sessions will not survive a restart")
	}

	// Initialize dependencies
	sessions, err := auth.NewSessionStore([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}
	throttle := auth.NewThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLock)

	hub := ws.NewHub(int64(cfg.MaxMessageSize), logger)
	directory := chat.NewDirectory(usecase.NewNicknameGenerator())
	dispatcher := chat.NewDispatcher(directory, hub, sessions, logger)

	deps := httpHandler.Deps{
		Config:     cfg,
		Sessions:   sessions,
		Throttle:   throttle,
		Hub:        hub,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	if cfg.AuditDBPath != "" {
		audit, err := store.Open(cfg.AuditDBPath, logger)
		if err != nil {
			return err
		}
		defer audit.Close()
		deps.Audit = audit
		logger.Info("login audit enabled", "path", cfg.AuditDBPath)
	}

	handler, err := httpHandler.NewHandler(deps)
	if err != nil {
		return err
	}
	limiters := httpHandler.NewLimiters(cfg)

	stop := make(chan struct{})
	defer close(stop)
	go sessions.RunCleanup(housekeepingInterval, stop)
	go throttle.RunSweeper(housekeepingInterval, stop)
	go limiters.API.RunCleanup(housekeepingInterval, stop)
	go limiters.WebSocket.RunCleanup(housekeepingInterval, stop)

	// Create server with timeouts
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler.NewRouter(handler, limiters),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server exited gracefully")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poolpay/poolpay/internal/auth"
	"github.com/poolpay/poolpay/internal/ledger"
	"github.com/poolpay/poolpay/internal/service"
	"github.com/poolpay/poolpay/internal/storage"
	"github.com/poolpay/poolpay/internal/storage/postgres"
	"github.com/poolpay/poolpay/internal/storage/sqlite"
	"github.com/poolpay/poolpay/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

// newStore picks the persistence backend from configuration. Business
// logic never branches on backend identity; the choice is made exactly
// once, here.
func newStore() (storage.Store, error) {
	switch backend := getEnv("DB_BACKEND", "sqlite"); backend {
	case "postgres":
		return postgres.New(getEnv("DATABASE_URL", "postgres://localhost/poolpay?sslmode=disable"))
	case "sqlite":
		return sqlite.New(getEnv("DB_PATH", "./data/poolpay.db"))
	default:
		return nil, errors.New("unknown DB_BACKEND: " + backend)
	}
}

func main() {
	logging.Setup()

	store, err := newStore()
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "backend", getEnv("DB_BACKEND", "sqlite"))

	jwtManager := auth.NewJWTManager(
		getEnv("JWT_SECRET", "dev-secret-change-me"),
		getEnvDuration("TOKEN_DURATION", 24*time.Hour),
	)
	remainder := ledger.ParseRemainderPolicy(getEnv("SPLIT_REMAINDER", "drift"))

	router := service.NewRouter(store, jwtManager, remainder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweep stale pending requests into expired; an external scheduler can
	// take over via the expire endpoint if preferred.
	expirer := service.NewExpirer(store,
		getEnvDuration("REQUEST_TTL", 72*time.Hour),
		getEnvDuration("EXPIRY_INTERVAL", 10*time.Minute),
	)
	go expirer.Run(ctx)

	addr := ":" + getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("PoolPay server starting", "address", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poolpay/poolpay/internal/ledger"
	"github.com/poolpay/poolpay/internal/storage"
)

// Expirer sweeps pending payment requests past their TTL into the expired
// state. It plays the external-scheduler role for deployments that don't
// bring their own.
type Expirer struct {
	store     storage.Store
	lifecycle *ledger.Lifecycle
	ttl       time.Duration
	interval  time.Duration
}

// NewExpirer creates a sweeper that expires pending requests older than
// ttl, checking every interval.
func NewExpirer(store storage.Store, ttl, interval time.Duration) *Expirer {
	return &Expirer{
		store:     store,
		lifecycle: ledger.NewLifecycle(store),
		ttl:       ttl,
		interval:  interval,
	}
}

// Run sweeps until the context is canceled.
func (e *Expirer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	slog.Info("Request expirer started", "ttl", e.ttl, "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Request expirer stopped")
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Expirer) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-e.ttl).Unix()
	stale, err := e.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Expiry sweep failed to list requests", "error", err)
		return
	}

	expired := 0
	for _, req := range stale {
		if _, err := e.lifecycle.Expire(ctx, req.ID); err != nil {
			// A member responding between list and expire is a lost
			// race, not a failure.
			if errors.Is(err, storage.ErrConflict) || errors.Is(err, ledger.ErrInvalidState) {
				continue
			}
			slog.Error("Expiry sweep failed to expire request", "request_id", req.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		slog.Info("Expired stale payment requests", "count", expired)
	}
}

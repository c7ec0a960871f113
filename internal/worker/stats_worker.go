package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
)

// StatsWorker periodically recomputes the subscription state gauges. Counts
// are computed against the clock, so a lapsed subscription shows up as expired
// here even before any request triggers its reclassification.
type StatsWorker struct {
	subscriptions domain.SubscriptionRepository
	logger        *slog.Logger
	interval      time.Duration
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(subscriptions domain.SubscriptionRepository, logger *slog.Logger, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsWorker{
		subscriptions: subscriptions,
		logger:        logger,
		interval:      interval,
	}
}

// Start begins the worker loop. It runs one pass immediately so the gauges
// are populated right after startup, then ticks until the context is done.
func (w *StatsWorker) Start(ctx context.Context) {
	w.logger.Info("subscription stats worker started", slog.Duration("interval", w.interval))

	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("subscription stats worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	now := time.Now()

	active, err := w.subscriptions.CountActive(ctx, now)
	if err != nil {
		w.logger.Error("failed to count active subscriptions", slog.String("error", err.Error()))
		return
	}
	expired, err := w.subscriptions.CountExpired(ctx, now)
	if err != nil {
		w.logger.Error("failed to count expired subscriptions", slog.String("error", err.Error()))
		return
	}

	metrics.SetSubscriptionGauges(active, expired)
}

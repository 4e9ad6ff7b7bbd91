package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scanner is a reminder scanner pass.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) (ScanResult, error)
}

// Drainer is a due-notification drain pass.
type Drainer interface {
	DrainDue(ctx context.Context, now time.Time) (DrainResult, error)
}

// ReminderWorker runs the scanner and the drainer on a ticker inside the
// server process, for deployments without an external time-based trigger.
// Passes never overlap.
type ReminderWorker struct {
	scanner  Scanner
	drainer  Drainer
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewReminderWorker creates a worker ticking every interval.
func NewReminderWorker(scanner Scanner, drainer Drainer, interval time.Duration, log *zap.Logger) *ReminderWorker {
	return &ReminderWorker{
		scanner:  scanner,
		drainer:  drainer,
		interval: interval,
		now:      time.Now,
		log:      log.Named("worker"),
	}
}

// Start runs the worker in the background until ctx is cancelled.
func (w *ReminderWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *ReminderWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("reminder worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("reminder worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one scan followed by one drain. Failures are logged; the
// next tick re-attempts whatever is still undone.
func (w *ReminderWorker) RunOnce(ctx context.Context) {
	now := w.now()
	if _, err := w.scanner.Scan(ctx, now); err != nil {
		w.log.Error("reminder scan failed", zap.Error(err))
	}
	if _, err := w.drainer.DrainDue(ctx, now); err != nil {
		w.log.Error("notification drain failed", zap.Error(err))
	}
}

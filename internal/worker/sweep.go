package worker

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// SweepWorker periodically sweeps the memory store.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(sweeper Sweeper, interval time.Duration) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run starts the sweep loop. It blocks until the context is cancelled. A non-positive
// interval disables sweeping; expired entries are then only dropped on read.
func (w *SweepWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		slog.Info("SweepWorker: disabled", "interval", w.interval)
		return
	}
	slog.Info("SweepWorker: starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SweepWorker: shutting down")
			return
		case <-ticker.C:
			if n := w.sweeper.Sweep(); n > 0 {
				slog.Debug("SweepWorker: removed expired entries", "count", n)
			}
		}
	}
}

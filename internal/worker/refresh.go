package worker

import (
	"context"
	"log/slog"
	"time"
)

// Refresher re-fetches every registered dataset.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// AfterRefreshHook is called after each refresh pass, including partially failed ones.
type AfterRefreshHook interface {
	Export(ctx context.Context) error
}

// RefreshWorker keeps the persisted datasets warm.
type RefreshWorker struct {
	refresher Refresher
	interval  time.Duration
	hook      AfterRefreshHook // optional
}

// NewRefreshWorker creates a new RefreshWorker with an optional post-refresh hook.
func NewRefreshWorker(refresher Refresher, interval time.Duration, hook AfterRefreshHook) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		interval:  interval,
		hook:      hook,
	}
}

// RefreshOnce runs one refresh pass followed by the hook. The caller awaits it during
// startup so that upstream problems show up before the server accepts traffic.
func (w *RefreshWorker) RefreshOnce(ctx context.Context) error {
	err := w.refresher.RefreshAll(ctx)
	if err != nil {
		slog.Error("RefreshWorker: refresh failed", "error", err)
	} else {
		slog.Info("RefreshWorker: refresh completed")
	}
	w.runHook(ctx)
	return err
}

// runHook calls the post-refresh hook if one is configured.
func (w *RefreshWorker) runHook(ctx context.Context) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx); err != nil {
		slog.Error("RefreshWorker: export hook failed", "error", err)
	} else {
		slog.Info("RefreshWorker: export hook completed")
	}
}

// Run refreshes on every tick. It blocks until the context is cancelled. The initial
// pass is RefreshOnce. A non-positive interval disables periodic refresh and Run
// returns at once.
func (w *RefreshWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		slog.Info("RefreshWorker: disabled", "interval", w.interval)
		return
	}
	slog.Info("RefreshWorker: starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("RefreshWorker: shutting down")
			return
		case <-ticker.C:
			_ = w.RefreshOnce(ctx)
		}
	}
}

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockRefresher struct {
	callCount atomic.Int32
	err       error
}

func (m *mockRefresher) RefreshAll(_ context.Context) error {
	m.callCount.Add(1)
	return m.err
}

type mockHook struct {
	callCount atomic.Int32
}

func (m *mockHook) Export(_ context.Context) error {
	m.callCount.Add(1)
	return nil
}

type mockSweeper struct {
	callCount atomic.Int32
}

func (m *mockSweeper) Sweep() int {
	m.callCount.Add(1)
	return 1
}

func TestRefreshOnceRunsHookAndReturnsError(t *testing.T) {
	boom := errors.New("upstream down")
	refresher := &mockRefresher{err: boom}
	hook := &mockHook{}
	w := NewRefreshWorker(refresher, time.Hour, hook)

	if err := w.RefreshOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if got := hook.callCount.Load(); got != 1 {
		t.Errorf("hook calls = %d, want 1", got)
	}
}

func TestRefreshWorkerWithoutHook(t *testing.T) {
	w := NewRefreshWorker(&mockRefresher{}, time.Hour, nil)
	if err := w.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRefreshWorkerRunsAndShutdown(t *testing.T) {
	refresher := &mockRefresher{}
	hook := &mockHook{}
	w := NewRefreshWorker(refresher, 50*time.Millisecond, hook)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := refresher.callCount.Load(); got < 1 {
		t.Errorf("call count = %d, want >= 1", got)
	}
	if refresher.callCount.Load() != hook.callCount.Load() {
		t.Errorf("hook calls = %d, refresh calls = %d", hook.callCount.Load(), refresher.callCount.Load())
	}
}

func TestSweepWorkerRunsAndShutdown(t *testing.T) {
	sweeper := &mockSweeper{}
	w := NewSweepWorker(sweeper, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SweepWorker did not stop after context cancellation")
	}
	if got := sweeper.callCount.Load(); got < 2 {
		t.Errorf("sweep calls = %d, want >= 2", got)
	}
}

func TestWorkersDisabledByNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		refresher := &mockRefresher{}
		sweeper := &mockSweeper{}

		done := make(chan struct{})
		go func() {
			defer close(done)
			NewRefreshWorker(refresher, interval, nil).Run(context.Background())
			NewSweepWorker(sweeper, interval).Run(context.Background())
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("interval %v: workers did not return", interval)
		}
		if refresher.callCount.Load() != 0 || sweeper.callCount.Load() != 0 {
			t.Errorf("interval %v: refresh calls = %d, sweep calls = %d, want 0",
				interval, refresher.callCount.Load(), sweeper.callCount.Load())
		}
	}
}

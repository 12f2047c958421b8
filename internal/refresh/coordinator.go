// Package refresh coordinates upstream dataset fetches so that at most one fetch per
// dataset name is in flight at any time.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/store"
)

// ErrUpstreamFetch wraps a fetch failure that had no cached entry to fall back on.
var ErrUpstreamFetch = errors.New("upstream fetch failed")

// DefaultFetchTimeout bounds a single fetch when none is configured.
const DefaultFetchTimeout = 2 * time.Minute

// FetchFunc returns the complete current dataset, never a delta.
type FetchFunc func(ctx context.Context) (domain.Envelope, error)

// Store is the durable cache the coordinator reads from and writes to.
type Store interface {
	Read(ctx context.Context, key string) (*store.Entry, bool)
	Write(ctx context.Context, key string, payload domain.Envelope) bool
}

// Observer receives fetch and cache outcomes, e.g. for metrics.
type Observer interface {
	ObserveCacheRead(dataset string, hit bool)
	ObserveFetch(dataset string, elapsed time.Duration, err error)
	ObserveStaleFallback(dataset string)
}

// Result is the outcome of GetOrFetch.
type Result struct {
	Payload          domain.Envelope
	FromCache        bool
	FromExpiredCache bool
}

// Config tunes the coordinator.
type Config struct {
	// FetchTimeout bounds each fetch. Zero selects DefaultFetchTimeout.
	FetchTimeout time.Duration
	// MaxAge is how long a persisted entry is served without refetching. Zero means
	// entries never go stale on their own; only a forced refresh replaces them.
	MaxAge time.Duration
}

// Coordinator serves datasets from the store and collapses concurrent fetches.
type Coordinator struct {
	store    Store
	clock    clockwork.Clock
	cfg      Config
	observer Observer
	group    singleflight.Group
}

// NewCoordinator creates a Coordinator. clock and observer may be nil.
func NewCoordinator(s Store, cfg Config, clock clockwork.Clock, observer Observer) *Coordinator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Coordinator{store: s, clock: clock, cfg: cfg, observer: observer}
}

// GetOrFetch returns the full dataset for name. Without force, a valid and fresh
// persisted entry is returned as is. Otherwise fetch is run, unless a fetch for the
// same name is already in flight, in which case the caller waits for that one.
//
// On fetch failure the previous entry, if any, is returned with FromExpiredCache set
// and the fromExpiredCache field added to the payload. Without one, the error wraps
// ErrUpstreamFetch. Cancelling ctx abandons the wait but not the shared fetch.
func (c *Coordinator) GetOrFetch(ctx context.Context, name string, fetch FetchFunc, force bool) (Result, error) {
	if !force {
		if res, ok := c.cached(ctx, name); ok {
			return res, nil
		}
	}

	ch := c.group.DoChan(name, func() (any, error) {
		return c.run(ctx, name, fetch, force)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// cached returns a fresh persisted entry.
func (c *Coordinator) cached(ctx context.Context, name string) (Result, bool) {
	entry, ok := c.store.Read(ctx, name)
	if !ok {
		c.observer.ObserveCacheRead(name, false)
		return Result{}, false
	}
	if c.cfg.MaxAge > 0 && c.clock.Since(entry.WrittenAt) > c.cfg.MaxAge {
		c.observer.ObserveCacheRead(name, false)
		return Result{}, false
	}

	env, err := entry.Envelope()
	if err != nil {
		slog.Warn("cached dataset payload is not an envelope, treating as miss", "dataset", name, "error", err)
		c.observer.ObserveCacheRead(name, false)
		return Result{}, false
	}
	c.observer.ObserveCacheRead(name, true)
	return Result{Payload: env, FromCache: true}, true
}

// run executes inside the single-flight group.
func (c *Coordinator) run(callerCtx context.Context, name string, fetch FetchFunc, force bool) (Result, error) {
	ctx := context.WithoutCancel(callerCtx)

	// A flight that finished between the caller's miss and joining the group has
	// already written the store.
	if !force {
		if res, ok := c.cached(ctx, name); ok {
			return res, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := c.clock.Now()
	env, err := fetch(fetchCtx)
	if err == nil && env == nil {
		err = errors.New("fetch returned no data")
	}

	var canon domain.Envelope
	if err == nil {
		canon, _, err = env.Canonical()
	}
	c.observer.ObserveFetch(name, c.clock.Since(start), err)

	if err != nil {
		slog.Error("dataset fetch failed", "dataset", name, "error", err)
		return c.fallback(ctx, name, err)
	}

	if !c.store.Write(ctx, name, canon) {
		slog.Warn("serving fetched dataset without persisting it", "dataset", name)
	}
	slog.Debug("dataset refreshed", "dataset", name, "records", canon.RecordCount())
	return Result{Payload: canon}, nil
}

func (c *Coordinator) fallback(ctx context.Context, name string, cause error) (Result, error) {
	entry, ok := c.store.Read(ctx, name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrUpstreamFetch, name, cause)
	}
	env, err := entry.Envelope()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrUpstreamFetch, name, cause)
	}

	slog.Warn("serving expired cache after fetch failure", "dataset", name, "writtenAt", entry.WrittenAt)
	c.observer.ObserveStaleFallback(name)
	env[domain.FieldFromExpiredCache] = true
	return Result{Payload: env, FromCache: true, FromExpiredCache: true}, nil
}

type nopObserver struct{}

func (nopObserver) ObserveCacheRead(string, bool)             {}
func (nopObserver) ObserveFetch(string, time.Duration, error) {}
func (nopObserver) ObserveStaleFallback(string)               {}

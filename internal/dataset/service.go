// Package dataset is the single call surface for period-filtered datasets.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/memcache"
	"github.com/mtlprog/nftdash/internal/period"
	"github.com/mtlprog/nftdash/internal/refresh"
	"github.com/mtlprog/nftdash/internal/store"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

// ErrUnknownDataset indicates that no dataset is registered under the name.
var ErrUnknownDataset = errors.New("unknown dataset")

// FieldFetchedAt carries the payload's original timestamp once the response is
// stamped with the query time.
const FieldFetchedAt = "fetchedAt"

// Coordinator provides full datasets.
type Coordinator interface {
	GetOrFetch(ctx context.Context, name string, fetch refresh.FetchFunc, force bool) (refresh.Result, error)
}

// Admin is the cache administration surface of the persistent store.
type Admin interface {
	List(ctx context.Context) []store.Info
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context) int
}

// Definition registers a dataset with its fetcher and filter hints.
type Definition struct {
	Name    string
	Fetch   refresh.FetchFunc
	Options period.Options
}

// Service combines dataset retrieval and period projection.
type Service struct {
	coordinator Coordinator
	filter      *period.Filter
	admin       Admin
	views       *memcache.Store
	viewTTL     time.Duration
	clock       clockwork.Clock

	mu   sync.RWMutex
	defs map[string]Definition
}

// NewService creates a Service. views may be nil, and a zero viewTTL disables the
// short-lived cache of filtered views.
func NewService(coordinator Coordinator, filter *period.Filter, admin Admin, views *memcache.Store, viewTTL time.Duration, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		coordinator: coordinator,
		filter:      filter,
		admin:       admin,
		views:       views,
		viewTTL:     viewTTL,
		clock:       clock,
		defs:        make(map[string]Definition),
	}
}

// Register adds or replaces a dataset definition.
func (s *Service) Register(defs ...Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		s.defs[d.Name] = d
	}
}

// Datasets returns the registered dataset names in order.
func (s *Service) Datasets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := lo.Keys(s.defs)
	slices.Sort(names)
	return names
}

func (s *Service) definition(name string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return d, nil
}

// GetCachedData returns the dataset name filtered to p, stamped with the period and
// the current time. The full dataset comes from the coordinator, which fetches only
// when forced, missing or stale.
func (s *Service) GetCachedData(ctx context.Context, name string, p domain.Period, fetch refresh.FetchFunc, force bool, opts period.Options) (domain.Envelope, error) {
	res, err := s.coordinator.GetOrFetch(ctx, name, fetch, force)
	if err != nil {
		return nil, err
	}

	out := s.filter.Envelope(res.Payload, p, opts).Clone()
	if ts, ok := out[domain.FieldTimestamp]; ok {
		out[FieldFetchedAt] = ts
	}
	out[domain.FieldPeriod] = string(p)
	out[domain.FieldTimestamp] = timestamp.ToISOString(s.clock.Now())
	return out, nil
}

// Get serves a registered dataset. Unforced calls may be answered from the view
// cache for up to the view TTL.
func (s *Service) Get(ctx context.Context, name string, p domain.Period, force bool) (domain.Envelope, error) {
	def, err := s.definition(name)
	if err != nil {
		return nil, err
	}

	key := viewKey(name, p)
	if !force && s.viewsEnabled() {
		if v, ok := s.views.Get(key); ok {
			return s.restamp(v.(domain.Envelope), p, def.Options), nil
		}
	}

	if force {
		s.invalidate(name)
	}
	out, err := s.GetCachedData(ctx, name, p, def.Fetch, force, def.Options)
	if err != nil {
		return nil, err
	}
	if s.viewsEnabled() {
		s.views.Set(key, out.Clone(), s.viewTTL)
	}
	return out, nil
}

// restamp re-applies the window at the current time to a cached view. Windows only
// move forward, so filtering the view again equals filtering the full dataset.
func (s *Service) restamp(view domain.Envelope, p domain.Period, opts period.Options) domain.Envelope {
	out := s.filter.Envelope(view, p, opts).Clone()
	out[domain.FieldTimestamp] = timestamp.ToISOString(s.clock.Now())
	return out
}

// Options returns the filter hints registered for name.
func (s *Service) Options(name string) (period.Options, error) {
	def, err := s.definition(name)
	if err != nil {
		return period.Options{}, err
	}
	return def.Options, nil
}

// Filter exposes the period filter for presentation helpers such as monthly buckets.
func (s *Service) Filter() *period.Filter {
	return s.filter
}

// Refresh forces a fetch of a registered dataset.
func (s *Service) Refresh(ctx context.Context, name string) error {
	def, err := s.definition(name)
	if err != nil {
		return err
	}
	s.invalidate(name)
	res, err := s.coordinator.GetOrFetch(ctx, name, def.Fetch, true)
	if err != nil {
		return err
	}
	if res.FromExpiredCache {
		return fmt.Errorf("refreshing %s: serving expired cache", name)
	}
	return nil
}

// RefreshAll refreshes every registered dataset and joins the failures.
func (s *Service) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.Datasets() {
		if err := s.Refresh(ctx, name); err != nil {
			slog.Error("dataset refresh failed", "dataset", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List describes every persisted dataset.
func (s *Service) List(ctx context.Context) []store.Info {
	return s.admin.List(ctx)
}

// Delete removes the persisted entry for name and its cached views.
func (s *Service) Delete(ctx context.Context, name string) bool {
	s.invalidate(name)
	return s.admin.Delete(ctx, name)
}

// Clear removes every persisted entry and all cached views.
func (s *Service) Clear(ctx context.Context) int {
	if s.views != nil {
		s.views.Clear()
	}
	return s.admin.Clear(ctx)
}

// MemoryStats reports the view cache statistics.
func (s *Service) MemoryStats() memcache.Stats {
	if s.views == nil {
		return memcache.Stats{}
	}
	return s.views.Stats()
}

func (s *Service) viewsEnabled() bool {
	return s.views != nil && s.viewTTL > 0
}

func (s *Service) invalidate(name string) {
	if s.views == nil {
		return
	}
	for _, p := range domain.Periods {
		s.views.Delete(viewKey(name, p))
	}
}

func viewKey(name string, p domain.Period) string {
	return "view:" + name + ":" + string(p)
}

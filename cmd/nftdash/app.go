package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/mtlprog/nftdash/internal/chain"
	"github.com/mtlprog/nftdash/internal/config"
	"github.com/mtlprog/nftdash/internal/database"
	"github.com/mtlprog/nftdash/internal/dataset"
	"github.com/mtlprog/nftdash/internal/export"
	"github.com/mtlprog/nftdash/internal/game"
	"github.com/mtlprog/nftdash/internal/memcache"
	"github.com/mtlprog/nftdash/internal/metrics"
	"github.com/mtlprog/nftdash/internal/period"
	"github.com/mtlprog/nftdash/internal/refresh"
	"github.com/mtlprog/nftdash/internal/store"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

// app holds the wired services shared by the sub-commands.
type app struct {
	cfg      config.Config
	clock    clockwork.Clock
	metrics  *metrics.Service
	store    *store.Persistent
	views    *memcache.Store
	requests *memcache.Store
	filter   *period.Filter
	datasets *dataset.Service
	closers  []func()
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the configured cache backend.
func openStore(ctx context.Context, cfg config.Config, normalizer *timestamp.Normalizer, clock clockwork.Clock, migrations fs.FS) (*store.Persistent, func(), error) {
	var (
		backend store.Backend
		closeFn = func() {}
	)

	switch cfg.CacheBackend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres cache backend")
		}
		pool, err := database.ConnectAndMigrate(ctx, cfg.DatabaseURL, migrations)
		if err != nil {
			return nil, nil, err
		}
		backend, closeFn = store.NewPgBackend(pool), pool.Close
	case config.BackendRedis:
		rb, err := store.NewRedisBackend(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		backend = rb
		closeFn = func() {
			if err := rb.Close(); err != nil {
				slog.Warn("closing redis client", "error", err)
			}
		}
	default:
		backend = store.NewFileBackend(cfg.CacheDir)
	}

	slog.Info("cache backend ready", "backend", cfg.CacheBackend)
	return store.NewPersistent(backend, normalizer, clock), closeFn, nil
}

func newApp(ctx context.Context, cfg config.Config, migrations fs.FS) (*app, error) {
	clock := clockwork.NewRealClock()
	normalizer := timestamp.NewNormalizer(cfg.PlatformEpoch)
	m := metrics.NewService()

	ps, closeStore, err := openStore(ctx, cfg, normalizer, clock, migrations)
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}

	// Views are dropped by cache admin calls; request dedupe entries are not.
	views := memcache.New(cfg.MemoryMaxItems)
	requests := memcache.New(cfg.MemoryMaxItems)

	rpc := chain.NewClient(cfg.ChainRPCURLs, cfg.RPCRetryMax, cfg.RPCRetryBaseDelay,
		chain.WithDedupe(requests, cfg.RequestDedupeTTL),
		chain.WithObserver(m),
	)
	var explorer game.Explorer
	if cfg.ExplorerURL != "" {
		explorer = chain.NewExplorer(chain.NewClient([]string{cfg.ExplorerURL}, cfg.RPCRetryMax, cfg.RPCRetryBaseDelay,
			chain.WithDedupe(requests, cfg.RequestDedupeTTL),
			chain.WithObserver(m),
		))
	} else {
		slog.Warn("EXPLORER_URL not set, sales dataset disabled")
	}

	games := game.NewService(rpc, explorer, normalizer, clock, game.Config{
		AssetID:       cfg.GameAssetID,
		TokenContract: cfg.TokenContract,
		BurnAddress:   cfg.BurnAddress,
		SaleAddress:   cfg.SaleAddress,
	})

	coordinator := refresh.NewCoordinator(ps, refresh.Config{
		FetchTimeout: cfg.FetchTimeout,
		MaxAge:       cfg.CacheMaxAge,
	}, clock, m)
	filter := period.NewFilter(normalizer, clock, m.FailOpenCounter())

	svc := dataset.NewService(coordinator, filter, ps, views, cfg.ViewCacheTTL, clock)
	svc.Register(games.Definitions()...)
	m.RegisterMemoryStats(svc)

	return &app{
		cfg:      cfg,
		clock:    clock,
		metrics:  m,
		store:    ps,
		views:    views,
		requests: requests,
		filter:   filter,
		datasets: svc,
		closers:  []func(){closeStore},
	}, nil
}

// sheetWriter returns the configured export destination, or nil when none is set.
// xlsxPath overrides XLSX_EXPORT_PATH.
func (a *app) sheetWriter(ctx context.Context, xlsxPath string) (export.SheetWriter, error) {
	if xlsxPath == "" {
		xlsxPath = a.cfg.XLSXExportPath
	}
	switch {
	case xlsxPath != "":
		return export.NewXLSXWriter(xlsxPath), nil
	case a.cfg.SheetsSpreadsheetID != "" && a.cfg.GoogleCredentialsJSON != "":
		w, err := export.NewSheetsWriter(ctx, a.cfg.SheetsSpreadsheetID, a.cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("creating sheets writer: %w", err)
		}
		return w, nil
	default:
		return nil, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

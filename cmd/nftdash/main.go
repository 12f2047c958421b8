package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/nftdash/internal/api"
	"github.com/mtlprog/nftdash/internal/config"
	"github.com/mtlprog/nftdash/internal/export"
	"github.com/mtlprog/nftdash/internal/timestamp"
	"github.com/mtlprog/nftdash/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to create migrations sub-fs", "error", err)
		os.Exit(1)
	}

	cliApp := &cli.App{
		Name:  "nftdash",
		Usage: "NFT game dashboard backend",
		Commands: []*cli.Command{
			serveCommand(cfg, migrations),
			cacheCommand(cfg, migrations),
			exportCommand(cfg, migrations),
		},
		DefaultCommand: "serve",
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		slog.Error("nftdash failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand(cfg config.Config, migrations fs.FS) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and background workers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "HTTP port, overrides HTTP_PORT", Value: cfg.HTTPPort},
			&cli.BoolFlag{Name: "skip-initial-refresh", Usage: "start serving without refreshing datasets first"},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, cfg, migrations, c.String("port"), c.Bool("skip-initial-refresh"))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, migrations fs.FS, port string, skipInitial bool) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a, err := newApp(ctx, cfg, migrations)
	if err != nil {
		return err
	}
	defer a.Close()

	var hook worker.AfterRefreshHook
	writer, err := a.sheetWriter(ctx, "")
	if err != nil {
		slog.Warn("export disabled", "error", err)
	} else if writer != nil {
		hook = export.NewService(a.datasets, writer, a.clock)
	}

	refreshWorker := worker.NewRefreshWorker(a.datasets, cfg.RefreshInterval, hook)
	if !skipInitial {
		slog.Info("running initial refresh", "datasets", a.datasets.Datasets())
		if err := refreshWorker.RefreshOnce(ctx); err != nil {
			slog.Warn("initial refresh incomplete, affected datasets will be fetched on demand", "error", err)
		}
	}
	go refreshWorker.Run(ctx)
	go worker.NewSweepWorker(a.views, cfg.MemorySweepInterval).Run(ctx)
	go worker.NewSweepWorker(a.requests, cfg.MemorySweepInterval).Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, cache admin endpoints are unprotected")
	}

	srv := api.NewServer(port, a.datasets, a.filter, a.metrics.Handler(), cfg.AdminAPIKey)

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func cacheCommand(cfg config.Config, migrations fs.FS) *cli.Command {
	withStore := func(c *cli.Context, fn func(a *app) error) error {
		a, err := newApp(c.Context, cfg, migrations)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a)
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "inspect and administer the persistent dataset cache",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list cached datasets",
				Action: func(c *cli.Context) error {
					return withStore(c, func(a *app) error {
						tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
						fmt.Fprintln(tw, "KEY\tRECORDS\tSIZE\tWRITTEN")
						for _, info := range a.store.List(c.Context) {
							fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Key, info.RecordCount, info.Size, timestamp.ToISOString(info.ModifiedAt))
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "delete one cached dataset",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return cli.Exit("dataset name required", 2)
					}
					return withStore(c, func(a *app) error {
						if !a.store.Delete(c.Context, name) {
							return fmt.Errorf("no cache entry for %s", name)
						}
						fmt.Fprintf(c.App.Writer, "deleted %s\n", name)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "delete every cached dataset",
				Action: func(c *cli.Context) error {
					return withStore(c, func(a *app) error {
						fmt.Fprintf(c.App.Writer, "removed %d entries\n", a.store.Clear(c.Context))
						return nil
					})
				},
			},
		},
	}
}

func exportCommand(cfg config.Config, migrations fs.FS) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write the per-period dataset summary to Google Sheets or an XLSX file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "xlsx", Usage: "write to this XLSX path instead of Google Sheets"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c.Context, cfg, migrations)
			if err != nil {
				return err
			}
			defer a.Close()

			writer, err := a.sheetWriter(c.Context, c.String("xlsx"))
			if err != nil {
				return err
			}
			if writer == nil {
				return cli.Exit("no export destination: set --xlsx, XLSX_EXPORT_PATH or SHEETS_SPREADSHEET_ID with GOOGLE_CREDENTIALS_JSON", 2)
			}
			return export.NewService(a.datasets, writer, a.clock).Export(c.Context)
		},
	}
}

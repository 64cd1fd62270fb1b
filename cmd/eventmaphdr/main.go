// SPDX-License-Identifier: MIT

// Command eventmaphdr rewrites the headers of PanDDA event maps so
// downstream refinement tools accept them: spacegroup forced to P 1,
// data promoted to 32-bit floats, statistics recomputed.
//
// One-shot mode (the default) processes a PanDDA analysis directory
// once and exits. With -serve it runs as a daemon that watches the
// tree and exposes an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/xchem/eventmaphdr/internal/api"
	"github.com/xchem/eventmaphdr/internal/config"
	"github.com/xchem/eventmaphdr/internal/health"
	"github.com/xchem/eventmaphdr/internal/jobs"
	"github.com/xchem/eventmaphdr/internal/journal"
	xlog "github.com/xchem/eventmaphdr/internal/log"
	"github.com/xchem/eventmaphdr/internal/telemetry"
	"github.com/xchem/eventmaphdr/internal/version"
	"github.com/xchem/eventmaphdr/internal/watch"
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	serve := flag.Bool("serve", false, "run as a daemon instead of a one-shot update")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [flags] [pandda_dir]\n\nflags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("eventmaphdr %s (commit: %s, built: %s)\n",
			version.Version, version.Commit, version.Date)
		return 0
	}

	// Leave the level empty so EMH_LOG_LEVEL applies immediately; the
	// configured level is set once the config file has been read.
	xlog.Configure(xlog.Config{
		Service: "eventmaphdr",
		Version: version.Version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").
			Msg("failed to load configuration")
		return 1
	}

	// The positional argument wins over EMH_PANDDA_DIR and the config
	// file, matching how the tool is invoked from processing scripts.
	if flag.NArg() > 1 {
		flag.Usage()
		return 2
	}
	if flag.NArg() == 1 {
		dir, err := resolvePanDDADir(flag.Arg(0))
		if err != nil {
			logger.Error().Err(err).Str("event", "config.invalid").
				Msg("cannot resolve pandda directory")
			return 1
		}
		cfg.PanDDADir = dir
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := config.Validate(cfg); err != nil {
		logger.Error().Err(err).Str("event", "config.invalid").
			Msg("invalid configuration")
		return 1
	}

	xlog.SetLevel(cfg.LogLevel)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    "eventmaphdr",
		ServiceVersion: version.Version,
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
		return 1
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	var jnl *journal.Journal
	if path := cfg.JournalPath(); path != "" {
		jnl, err = journal.Open(path)
		if err != nil {
			// The journal only saves re-reads; run without it.
			logger.Warn().Err(err).Str(xlog.FieldPath, path).
				Str("event", "journal.open_failed").
				Msg("journal unavailable, every map will be re-examined")
			jnl = nil
		} else {
			defer func() {
				_ = jnl.Close()
			}()
		}
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str(xlog.FieldRootDir, cfg.PanDDADir).
		Bool("serve", *serve).
		Bool("dry_run", cfg.DryRun).
		Msg("starting eventmaphdr")

	if !*serve {
		return runOnce(ctx, cfg, jnl)
	}
	return runDaemon(ctx, cfg, jnl)
}

// resolvePanDDADir turns the positional argument into an absolute
// path, so invocations like "eventmaphdr ." pass validation.
func resolvePanDDADir(arg string) (string, error) {
	return filepath.Abs(arg)
}

// runOnce performs a single update pass, the behaviour scripts expect
// from the bare command.
func runOnce(ctx context.Context, cfg config.AppConfig, jnl *journal.Journal) int {
	logger := xlog.WithComponent("main")

	status, err := jobs.Update(ctx, cfg, jnl)
	if err != nil {
		logger.Error().Err(err).Str("event", "update.failed").Msg("update failed")
		return 1
	}
	if status.Failed > 0 {
		logger.Error().
			Int("failed", status.Failed).
			Str("event", "update.partial").
			Msg("some event maps could not be updated")
		return 1
	}
	return 0
}

// runDaemon runs the HTTP API, the optional filesystem watcher, and an
// initial scan, until a termination signal arrives.
func runDaemon(ctx context.Context, cfg config.AppConfig, jnl *journal.Journal) int {
	logger := xlog.WithComponent("daemon")

	server := api.New(cfg, jnl)

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewPanDDAChecker(cfg.PanDDADir))
	hm.RegisterChecker(health.NewJournalChecker(cfg.JournalPath()))
	hm.RegisterChecker(health.NewLastRunChecker(server.LastRun))

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(hm),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rescan := func(ctx context.Context) error {
		st, err := jobs.Update(ctx, cfg, jnl)
		if err != nil {
			return err
		}
		server.SetStatus(*st)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).
			Str("event", "http.listen").Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// Metrics get their own listener so scrapes stay off the API port.
	if cfg.MetricsEnabled && cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.ListenAddr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).
				Str("event", "metrics.listen").Msg("metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	if cfg.WatchEnabled {
		g.Go(func() error {
			return watch.New(cfg, rescan).Run(gctx)
		})
	}

	// Initial scan so probes go ready without waiting for a trigger.
	g.Go(func() error {
		if err := rescan(gctx); err != nil {
			// Daemon stays up; the tree may simply not be ready yet.
			logger.Error().Err(err).Str("event", "startup.scan_failed").
				Msg("initial scan failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str("event", "daemon.failed").Msg("daemon failed")
		return 1
	}

	logger.Info().Str("event", "shutdown").Msg("server exiting")
	return 0
}

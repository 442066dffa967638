package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/api"
	"github.com/hubharvest/hubharvest/internal/catalog"
	"github.com/hubharvest/hubharvest/internal/clock/system"
	"github.com/hubharvest/hubharvest/internal/config"
	"github.com/hubharvest/hubharvest/internal/driver"
	collyfetcher "github.com/hubharvest/hubharvest/internal/fetcher/colly"
	"github.com/hubharvest/hubharvest/internal/fetcher/headless"
	"github.com/hubharvest/hubharvest/internal/harvest"
	"github.com/hubharvest/hubharvest/internal/hash/sha256"
	"github.com/hubharvest/hubharvest/internal/id/uuid"
	collylister "github.com/hubharvest/hubharvest/internal/lister/colly"
	"github.com/hubharvest/hubharvest/internal/progress"
	progsinks "github.com/hubharvest/hubharvest/internal/progress/sinks"
)

// newRunCmd creates the 'run' subcommand: one full harvest pass over the
// work set computed from the catalog and the record store.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs one harvest pass",
		Long: `Reconciles the identifier catalog against the record store, fetches every
identifier that is still missing, empty, or errored, and persists one
superseding record per fetch. Complete records are skipped.`,

		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.cfg

	creds, err := a.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	lister := collylister.New(collylister.Config{
		BaseURL:    cfg.Hub.BaseURL,
		ModelsPath: cfg.Hub.ModelsPath,
		UserAgent:  cfg.Hub.UserAgent,
		Timeout:    cfg.HTTPTimeout(),
	}, creds, a.logger)
	entries, err := catalog.New(cfg.Catalog.Path, lister, a.logger).Ensure(ctx)
	if err != nil {
		return fmt.Errorf("ensure catalog: %w", err)
	}

	fetcher, closeFetcher, err := buildFetcher(cfg, a.logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	promSink, err := progsinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: a.logger},
		progsinks.NewLogSink(a.logger),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			a.logger.Warn("Failed to close progress hub", zap.Error(cerr))
		}
	}()

	stopServer := startStatusServer(a, entries)
	defer stopServer()

	topic := ""
	if cfg.Publish.Enabled {
		topic = cfg.Publish.Topic
	}
	drv := driver.New(
		a.store,
		fetcher,
		a.creds,
		a.blobs,
		a.publisher,
		sha256.New(),
		system.New(),
		uuid.NewUUIDGenerator(),
		hub,
		driver.Config{
			Workers:    cfg.Harvest.Workers,
			Delay:      cfg.FetchDelay(),
			MinLikes:   cfg.Harvest.MinLikes,
			BlobPrefix: cfg.Blobs.Prefix,
			Topic:      topic,
		},
		a.logger,
	)

	result, err := drv.Run(ctx, entries)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}

	a.logger.Info("Harvest run finished.",
		zap.String("run_id", result.RunID),
		zap.Int("work_set", result.WorkSet),
		zap.Int("skipped", result.Skipped),
		zap.Int("write_failures", result.WriteFailures),
		zap.Int("complete", result.Classified[harvest.ClassComplete]),
		zap.Int("failed", result.Classified[harvest.ClassFailed]),
		zap.Int("incomplete", result.Classified[harvest.ClassIncomplete]),
	)
	return nil
}

// buildFetcher assembles the Colly fetcher, with headless promotion of
// shell-looking repository pages when enabled.
func buildFetcher(cfg config.Config, logger *zap.Logger) (harvest.Fetcher, func(), error) {
	fcfg := collyfetcher.Config{
		BaseURL:   cfg.Hub.BaseURL,
		UserAgent: cfg.Hub.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
		Delay:     cfg.FetchDelay(),
	}
	if !cfg.Headless.Enabled {
		return collyfetcher.New(fcfg, logger), func() {}, nil
	}

	renderer, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Hub.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init headless renderer: %w", err)
	}
	return collyfetcher.NewWithRenderer(fcfg, renderer, headless.NewHeuristic(0), logger), renderer.Close, nil
}

// startStatusServer exposes the read-only status API for the duration of the
// run. The returned stop function drains in-flight requests.
func startStatusServer(a *app, entries []harvest.CatalogEntry) func() {
	if !a.cfg.Server.Enabled {
		return func() {}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(entries, a.store, a.registry, a.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
}

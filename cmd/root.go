// Package cmd defines and implements the CLI commands for the hubharvest
// executable.
package cmd

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/config"
	"github.com/hubharvest/hubharvest/internal/credentials"
	"github.com/hubharvest/hubharvest/internal/harvest"
	"github.com/hubharvest/hubharvest/internal/logging"
	pubsubpublisher "github.com/hubharvest/hubharvest/internal/publisher/pubsub"
	storagegcs "github.com/hubharvest/hubharvest/internal/storage/gcs"
	storagelocal "github.com/hubharvest/hubharvest/internal/storage/local"
	storagememory "github.com/hubharvest/hubharvest/internal/storage/memory"
	storejsonfile "github.com/hubharvest/hubharvest/internal/store/jsonfile"
	storememory "github.com/hubharvest/hubharvest/internal/store/memory"
	storepostgres "github.com/hubharvest/hubharvest/internal/store/postgres"
)

var cfgFile string

// appKeyType is the key for storing the app in the command context.
type appKeyType struct{}

var appKey appKeyType

// app bundles the wired backends every subcommand needs: the record store,
// the README blob store, the optional completion publisher, and the
// credential provider.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     harvest.RecordStore
	blobs     harvest.BlobStore
	publisher harvest.Publisher
	creds     harvest.CredentialProvider
	registry  *prometheus.Registry

	closers []func()
}

// Close shuts the backends down in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newApp is the application factory. It is a variable so tests can replace
// it with a factory returning fakes.
var newApp = buildApp

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logging.L,
		registry: prometheus.NewRegistry(),
		creds:    credentials.NewFileProvider(cfg.Credentials.CookieFile, logging.L),
	}

	if err := a.buildStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "file":
		store, err := storejsonfile.New(storejsonfile.Config{
			Dir:         a.cfg.Store.Dir,
			ExtraShards: a.cfg.Store.ExtraShards,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init file record store: %w", err)
		}
		a.store = store
	case "postgres":
		store, err := storepostgres.NewRecordStore(ctx, storepostgres.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres record store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	case "memory":
		a.store = storememory.NewRecordStore()
	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	return nil
}

func (a *app) buildBlobs(ctx context.Context) error {
	switch a.cfg.Blobs.Backend {
	case "local":
		blobs, err := storagelocal.New(storagelocal.Config{BaseDir: a.cfg.Blobs.Dir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blobs = blobs
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init storage client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close storage client", zap.Error(cerr))
			}
		})
		blobs, err := storagegcs.New(client, storagegcs.Config{Bucket: a.cfg.Blobs.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blobs = blobs
	case "memory":
		a.blobs = storagememory.New()
	default:
		return fmt.Errorf("unknown blobs backend %q", a.cfg.Blobs.Backend)
	}
	return nil
}

func (a *app) buildPublisher(ctx context.Context) error {
	if !a.cfg.Publish.Enabled {
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Publish.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	publisher := pubsubpublisher.New(client)
	a.publisher = publisher
	a.closers = append(a.closers, func() {
		publisher.Close()
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("close pubsub client", zap.Error(cerr))
		}
	})
	return nil
}

// newRootCmd creates and configures the root command. Backends are built in
// PersistentPreRunE so every subcommand finds a ready app in its context, and
// torn down again in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hubharvest",
		Short: "An incremental harvester for model hub repositories.",
		Long: `hubharvest tracks a frozen catalog of hub repositories and, on each run,
fetches exactly the ones whose persisted record is missing, empty, or
contains an errored revision. Complete records are never re-fetched.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus HUBHARVEST_* env)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newDiscoverCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	appInstance, ok := ctx.Value(appKey).(*app)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. A bootstrap logger covers failures that
// happen before the config-driven logger exists.
func Execute(ctx context.Context) {
	if err := logging.Init(true); err != nil {
		panic(err)
	}
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}

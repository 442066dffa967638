package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/catalog"
	collylister "github.com/hubharvest/hubharvest/internal/lister/colly"
)

// newDiscoverCmd creates the 'discover' subcommand: a one-time walk of the
// hub listing pages that freezes the identifier catalog on disk.
func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Discovers and freezes the identifier catalog",
		Long: `Walks the hub model index once, following Next links, and persists one
catalog line per repository card. If a catalog already exists this is a
no-op: the catalog is frozen and later runs never re-list the hub.`,

		RunE: runDiscoverCommand,
	}
}

func runDiscoverCommand(cmd *cobra.Command, _ []string) error {
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

	a.logger.Info("Catalog ready.",
		zap.Int("entries", len(entries)),
		zap.String("path", cfg.Catalog.Path),
	)
	return nil
}

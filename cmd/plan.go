package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubharvest/hubharvest/internal/catalog"
	"github.com/hubharvest/hubharvest/internal/harvest"
)

// newPlanCmd creates the 'plan' subcommand: a dry reconciliation that prints
// what the next run would fetch, without touching the hub.
func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Shows what the next run would fetch",
		Long: `Loads the persisted catalog and the record store, classifies every
identifier, and prints the resulting work set. No network requests are made
and nothing is written.`,

		RunE: runPlanCommand,
	}
}

func runPlanCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}

	entries, err := catalog.New(a.cfg.Catalog.Path, nil, a.logger).Load()
	if err != nil {
		if errors.Is(err, harvest.ErrCatalogMissing) {
			return fmt.Errorf("no catalog at %s; run 'hubharvest discover' first", a.cfg.Catalog.Path)
		}
		return fmt.Errorf("load catalog: %w", err)
	}

	records, err := a.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	summary := harvest.Summarize(entries, records)
	work := harvest.ComputeWorkSet(entries, records)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "catalog:    %d\n", summary.Total())
	fmt.Fprintf(out, "unseen:     %d\n", summary.Unseen)
	fmt.Fprintf(out, "incomplete: %d\n", summary.Incomplete)
	fmt.Fprintf(out, "failed:     %d\n", summary.Failed)
	fmt.Fprintf(out, "complete:   %d\n", summary.Complete)
	fmt.Fprintf(out, "work set:   %d\n", len(work))
	for _, entry := range work {
		fmt.Fprintf(out, "  %s\t%s\n", harvest.ClassifyStored(entry.ID, records), entry.ID)
	}
	return nil
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/metrics"
	"github.com/evcraddock/sharebox/internal/share"
)

func newCleanupRemoteStoragesCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sharing:cleanup-remote-storages",
		Short: "Delete storages of federated shares that no longer exist",
		Long:  "Removes shared:: storages, and their cached files, that no received federated share maps to.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanupRemoteStorages(cmd.OutOrStdout(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only show which storages would be deleted")

	return cmd
}

func runCleanupRemoteStorages(out io.Writer, dryRun bool) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	stale, err := share.NewRemoteStorages(database, metrics.NewRepairMetrics()).Cleanup(dryRun)
	if err != nil {
		return fmt.Errorf("cleaning up remote storages: %w", err)
	}
	writeMetrics(cfg)

	if isJSON() {
		if stale == nil {
			stale = []share.StaleStorage{}
		}
		return printJSON(out, stale)
	}

	if len(stale) == 0 {
		fmt.Fprintln(out, "No stale remote storages found.")
		return nil
	}
	verb := "deleted"
	if dryRun {
		verb = "would be deleted"
	}
	for _, s := range stale {
		fmt.Fprintf(out, "%s (%d, %d files) %s\n", s.ID, s.NumericID, s.Files, verb)
	}
	return nil
}

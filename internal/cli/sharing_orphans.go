package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/metrics"
	"github.com/evcraddock/sharebox/internal/share"
)

func newDeleteOrphanSharesCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sharing:delete-orphan-shares",
		Short: "Delete shares whose owner can no longer reach the file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteOrphanShares(cmd.InOrStdin(), cmd.OutOrStdout(), force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete without asking for confirmation")

	return cmd
}

type orphanRow struct {
	share.Row
	State string `json:"state"`
}

func runDeleteOrphanShares(in io.Reader, out io.Writer, force bool) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	orphans := share.NewOrphans(database, metrics.NewRepairMetrics())
	found, err := orphans.FindOrphans(share.Filter{})
	if err != nil {
		return fmt.Errorf("finding orphan shares: %w", err)
	}

	if len(found) == 0 {
		if isJSON() {
			return printJSON(out, map[string]interface{}{"deleted": 0})
		}
		fmt.Fprintln(out, "No orphan shares found.")
		return nil
	}

	if isJSON() && !force {
		rows := make([]orphanRow, len(found))
		for i, o := range found {
			rows[i] = orphanRow{Row: o.Share.Row(), State: o.State.String()}
		}
		return printJSON(out, rows)
	}

	for _, o := range found {
		fmt.Fprintf(out, "%d  %s -> %s (%s) file %d: %s\n",
			o.Share.ID, o.Share.Owner, o.Share.SharedWith, o.Share.Type, o.Share.NodeID, o.State)
	}

	if !force {
		ok, err := confirm(in, out, fmt.Sprintf("Delete %d orphan shares?", len(found)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	n, err := orphans.DeleteOrphans(found)
	if err != nil {
		return fmt.Errorf("deleting orphan shares: %w", err)
	}
	writeMetrics(cfg)

	if isJSON() {
		return printJSON(out, map[string]interface{}{"deleted": n})
	}
	fmt.Fprintf(out, "%d orphan shares deleted.\n", n)
	return nil
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading input: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newFixShareOwnersCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sharing:fix-share-owners",
		Short: "Reassign shares to the user whose home holds the file",
		Long:  "Finds shares whose owner lost access to the shared file and moves them to the user whose home storage holds it. Shares with no such user are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixShareOwners(cmd.OutOrStdout(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only show which shares would be updated")

	return cmd
}

type fixRow struct {
	ID       int64  `json:"id"`
	OldOwner string `json:"old_owner"`
	NewOwner string `json:"new_owner"`
	FileID   int64  `json:"file_id"`
}

func runFixShareOwners(out io.Writer, dryRun bool) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	fixes, err := share.NewOrphans(database, metrics.NewRepairMetrics()).FixOwners(dryRun)
	if err != nil {
		return fmt.Errorf("fixing share owners: %w", err)
	}
	writeMetrics(cfg)

	if isJSON() {
		rows := make([]fixRow, len(fixes))
		for i, f := range fixes {
			rows[i] = fixRow{ID: f.Share.ID, OldOwner: f.Share.Owner, NewOwner: f.NewOwner, FileID: f.Share.NodeID}
		}
		return printJSON(out, rows)
	}

	if len(fixes) == 0 {
		fmt.Fprintln(out, "No shares need fixing.")
		return nil
	}
	verb := "updated"
	if dryRun {
		verb = "would be updated"
	}
	for _, f := range fixes {
		fmt.Fprintf(out, "Share %d %s: owner %s -> %s\n", f.Share.ID, verb, f.Share.Owner, f.NewOwner)
	}
	return nil
}

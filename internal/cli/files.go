package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/files"
)

func newFilesScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files:scan <uid>",
		Short: "Index a user's files",
		Long:  "Walks <data_dir>/<uid>/files and updates the file cache of the user's home storage.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilesScan(cmd.OutOrStdout(), args[0])
		},
	}
}

func runFilesScan(out io.Writer, uid string) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if _, err := auth.NewUserStore(database).Get(uid); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fmt.Errorf("user %s not found", uid)
		}
		return err
	}

	res, err := files.NewScanner(files.NewCache(database), cfg.DataDir).Scan(uid)
	if err != nil {
		return fmt.Errorf("scanning files of %s: %w", uid, err)
	}

	if isJSON() {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "Scanned %s: %d folders, %d files, %d removed.\n", uid, res.Folders, res.Files, res.Removed)
	return nil
}

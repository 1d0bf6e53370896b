package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/share"
)

func newSetOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sharing:set-owner <share-id> <new-owner>",
		Short: "Change the owner of a share",
		Long:  "Transfers a share to another user. The new owner must be able to access the shared item.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetOwner(cmd.OutOrStdout(), args)
		},
	}
}

func runSetOwner(out io.Writer, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid share ID: %s", args[0])
	}
	newOwner := args[1]

	_, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if _, err := auth.NewUserStore(database).Get(newOwner); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fmt.Errorf("user %s not found", newOwner)
		}
		return err
	}

	s, err := share.NewOrphans(database, nil).SetOwner(id, newOwner)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, s)
	}
	fmt.Fprintf(out, "Share %d is now owned by %s.\n", s.ID, s.Owner)
	return nil
}

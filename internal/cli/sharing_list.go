package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/files"
	"github.com/evcraddock/sharebox/internal/share"
)

type listOptions struct {
	owner      string
	sharedBy   string
	sharedWith string
	shareType  string
	fileID     int64
	parent     int64
	recursive  bool
}

func newSharingListCmd() *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "sharing:list",
		Short: "List shares",
		Long:  "List every share, optionally filtered. All filters must match.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSharingList(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.owner, "owner", "", "only shares owned by this user")
	cmd.Flags().StringVar(&opts.sharedBy, "shared-by", "", "only shares created by this user")
	cmd.Flags().StringVar(&opts.sharedWith, "shared-with", "", "only shares with this recipient")
	cmd.Flags().StringVar(&opts.shareType, "share-type", "", "only shares of this type (user, group, link, email, remote, ...)")
	cmd.Flags().Int64Var(&opts.fileID, "file-id", 0, "only shares of this file id")
	cmd.Flags().Int64Var(&opts.parent, "parent", 0, "only shares inside the folder with this file id")
	cmd.Flags().BoolVar(&opts.recursive, "recursive", false, "with --parent, include shares in subfolders")

	return cmd
}

// buildFilter turns the flags into a filter. The share type is checked
// before anything else so a bad value never touches the database.
func (o listOptions) buildFilter() (share.Filter, error) {
	f := share.Filter{
		Owner:      o.owner,
		SharedBy:   o.sharedBy,
		SharedWith: o.sharedWith,
		FileID:     o.fileID,
		Recursive:  o.recursive,
	}
	if o.shareType != "" {
		t, err := share.ParseType(o.shareType)
		if err != nil {
			return f, err
		}
		f.Type = &t
	}
	if o.recursive && o.parent == 0 {
		return f, fmt.Errorf("--recursive requires --parent")
	}
	return f, nil
}

func runSharingList(out io.Writer, opts listOptions) error {
	filter, err := opts.buildFilter()
	if err != nil {
		return err
	}

	_, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if opts.parent != 0 {
		folder, err := files.NewCache(database).Get(opts.parent)
		if errors.Is(err, files.ErrNotFound) {
			return fmt.Errorf("folder %d not found", opts.parent)
		}
		if err != nil {
			return err
		}
		if !folder.IsDir() {
			return fmt.Errorf("file %d is not a folder", opts.parent)
		}
		filter.Parent = folder
	}

	shares, err := share.Collect(filter.Apply(share.NewRepository(database).All()))
	if err != nil {
		return fmt.Errorf("listing shares: %w", err)
	}

	if isJSON() {
		if shares == nil {
			shares = []*share.Share{}
		}
		return printJSON(out, shares)
	}
	return printShareTable(out, shares)
}

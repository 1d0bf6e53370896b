package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/client"
)

func parseFileID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file ID: %s", arg)
	}
	return id, nil
}

func newCommentsListCmd() *cobra.Command {
	var (
		limit  int
		offset int
		since  string
	)

	cmd := &cobra.Command{
		Use:   "comments:list <file-id>",
		Short: "List the comments on a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			opts := client.ListOptions{Limit: limit, Offset: offset}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q, want RFC 3339 like 2026-01-02T15:04:05Z", since)
				}
				opts.Since = &t
			}
			return runCommentsList(cmd.OutOrStdout(), id, opts)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of comments")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of comments to skip")
	cmd.Flags().StringVar(&since, "since", "", "only comments older than this time (RFC 3339)")

	return cmd
}

func runCommentsList(out io.Writer, fileID int64, opts client.ListOptions) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	comments, err := c.ListComments(fileID, opts)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, comments)
	}
	printComments(out, comments)
	return nil
}

func newCommentsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments:add <file-id> <text...>",
		Short: "Comment on a file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			return runCommentsAdd(cmd.OutOrStdout(), id, strings.Join(args[1:], " "))
		},
	}
}

func runCommentsAdd(out io.Writer, fileID int64, text string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	loc, err := c.AddComment(fileID, text)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, map[string]interface{}{"file_id": fileID, "location": loc})
	}
	fmt.Fprintf(out, "Comment added: %s\n", loc)
	return nil
}

func newCommentsMarkReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments:mark-read <file-id>",
		Short: "Mark all comments on a file as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			c, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := c.MarkRead(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comments on file %d marked read.\n", id)
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/evcraddock/sharebox/internal/client"
	"github.com/evcraddock/sharebox/internal/share"
)

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printShareTable prints shares as a formatted table.
func printShareTable(out io.Writer, shares []*share.Share) error {
	if len(shares) == 0 {
		_, err := fmt.Fprintln(out, "No shares found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tOWNER\tSHARED BY\tSHARED WITH\tTYPE\tFILE ID"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	if _, err := fmt.Fprintln(w, "--\t-----\t---------\t-----------\t----\t-------"); err != nil {
		return fmt.Errorf("writing table separator: %w", err)
	}

	for _, s := range shares {
		r := s.Row()
		with := r.SharedWith
		if with == "" {
			with = "-"
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Owner, r.SharedBy, truncate(with, 40), r.Type, r.FileID); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing table: %w", err)
	}

	_, err := fmt.Fprintf(out, "\nTotal: %d shares\n", len(shares))
	return err
}

// printComments prints comments in text format.
func printComments(w io.Writer, comments []client.Comment) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "No comments.")
		return
	}

	for _, c := range comments {
		author := c.ActorDisplayName
		if author == "" {
			author = c.ActorID
		}
		marker := ""
		if c.IsUnread {
			marker = " *"
		}
		fmt.Fprintf(w, "[%s] #%d (%s)%s\n  %s\n\n",
			c.CreatedAt.Format("2006-01-02 15:04"), c.ID, author, marker, c.Message)
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

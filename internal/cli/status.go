package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection and auth status",
		Long:  "Tests the connection to the server and checks if the stored app password is valid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func runStatus(out io.Writer) error {
	serverURL := getServerURL()
	user, password := getCredentials()

	fmt.Fprintf(out, "Server:   %s\n", serverURL)

	c := client.New(serverURL, user, password)
	st, err := c.Status()
	if err != nil {
		fmt.Fprintf(out, "Status:   ✗ cannot reach server (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Version:  %s\n", st.Version)

	if user == "" || password == "" {
		fmt.Fprintln(out, "User:     not configured")
		fmt.Fprintln(out, "\nRun 'sharebox login' to authenticate.")
		return nil
	}

	prefix := password
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	fmt.Fprintf(out, "User:     %s (%s…)\n", user, prefix)

	switch err := c.CheckAuth(); {
	case err == nil:
		fmt.Fprintln(out, "Status:   ✓ connected and authenticated")
	case errors.Is(err, client.ErrUnauthorized):
		fmt.Fprintln(out, "Status:   ✗ invalid app password")
		fmt.Fprintln(out, "\nRun 'sharebox login' to re-authenticate.")
	default:
		fmt.Fprintf(out, "Status:   ✗ unexpected response (%v)\n", err)
	}

	return nil
}

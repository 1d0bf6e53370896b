package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored app password",
		Long:  "Removes the stored app password from the client config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.OutOrStdout())
		},
	}
}

func runLogout(out io.Writer) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.AppPassword == "" {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	cfg.AppPassword = ""
	if err := saveClientConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintln(out, "✓ Logged out. App password removed.")
	return nil
}

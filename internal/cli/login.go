package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var server, user string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an app password for the comment commands",
		Long:  "Reads an app password from stdin and stores it with the user and server URL. Create one with 'sharebox user:app-password'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.InOrStdin(), cmd.OutOrStdout(), server, user)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL (default: from config or http://localhost:8080)")
	cmd.Flags().StringVar(&user, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runLogin(in io.Reader, out io.Writer, serverFlag, user string) error {
	fmt.Fprint(out, "App password: ")
	key, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading input: %w", err)
	}

	key = strings.TrimSpace(key)
	if err := validateAppPassword(key); err != nil {
		return err
	}

	// Load existing config to preserve other fields
	cfg, err := loadClientConfig()
	if err != nil {
		cfg = CLIConfig{}
	}

	cfg.User = user
	cfg.AppPassword = key
	if serverFlag != "" {
		cfg.ServerURL = strings.TrimRight(serverFlag, "/")
	}

	if err := saveClientConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(out, "\n✓ App password saved for %s.\n", user)
	return nil
}

// validateAppPassword checks that the password is non-empty and has the
// expected prefix.
func validateAppPassword(key string) error {
	if key == "" {
		return fmt.Errorf("no app password provided")
	}
	if !strings.HasPrefix(key, "sbx_") {
		return fmt.Errorf("invalid app password format (should start with sbx_)")
	}
	return nil
}

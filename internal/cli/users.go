package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/auth"
)

func newUserAddCmd() *cobra.Command {
	var displayName, mail, password string

	cmd := &cobra.Command{
		Use:   "user:add <uid>",
		Short: "Add a user",
		Long:  "Creates an account. Without --password the account can only sign in with app passwords.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd.OutOrStdout(), args[0], displayName, mail, password)
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&mail, "email", "", "e-mail address for notifications")
	cmd.Flags().StringVar(&password, "password", "", "login password")

	return cmd
}

func runUserAdd(out io.Writer, uid, displayName, mail, password string) error {
	_, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	u, err := auth.NewUserStore(database).Add(uid, displayName, mail, password)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, u)
	}
	fmt.Fprintf(out, "User %s created.\n", u.UID)
	return nil
}

func newAppPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user:app-password <uid> <name>",
		Short: "Create an app password",
		Long:  "Creates an app password for the user. It is printed once and cannot be shown again.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppPassword(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runAppPassword(out io.Writer, uid, name string) error {
	_, database, err := openDB()
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

	raw, ap, err := auth.NewAppPasswordStore(database).Create(uid, name)
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, map[string]interface{}{
			"id":           ap.ID,
			"uid":          ap.UID,
			"name":         ap.Name,
			"app_password": raw,
		})
	}
	fmt.Fprintf(out, "App password %q for %s:\n\n  %s\n\nStore it now, it will not be shown again.\n", ap.Name, ap.UID, raw)
	return nil
}

func newGroupAddUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group:add-user <gid> <uid>",
		Short: "Add a user to a group",
		Long:  "Adds the user to the group, creating the group if needed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroupAddUser(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runGroupAddUser(out io.Writer, gid, uid string) error {
	_, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if err := auth.NewUserStore(database).AddToGroup(gid, uid); err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out, map[string]string{"gid": gid, "uid": uid})
	}
	fmt.Fprintf(out, "User %s added to group %s.\n", uid, gid)
	return nil
}

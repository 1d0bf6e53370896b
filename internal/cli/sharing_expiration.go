package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evcraddock/sharebox/internal/email"
	"github.com/evcraddock/sharebox/internal/metrics"
	"github.com/evcraddock/sharebox/internal/share"
)

func newExpirationNotificationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sharing:expiration-notification",
		Short: "Notify share initiators about shares expiring within a day",
		Long:  "Sends an e-mail to the initiator of every share that expires in the next 24 hours. Without SMTP settings, or in dev mode, the mail is printed instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpirationNotification(cmd.OutOrStdout())
		},
	}
}

type notificationRow struct {
	ShareID   int64  `json:"share_id"`
	Recipient string `json:"recipient"`
	Email     string `json:"email,omitempty"`
	Skipped   bool   `json:"skipped"`
}

func runExpirationNotification(out io.Writer) error {
	cfg, database, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(database)

	mailer := email.NewMailer(cfg.SMTP.Email(), cfg.SMTP.DevMode)
	mailer.SetOutput(out)

	notifier := share.NewExpirationNotifier(database, mailer, metrics.NewRepairMetrics())
	notifier.BaseURL = cfg.Server.BaseURL
	sent, err := notifier.Notify()
	writeMetrics(cfg)
	if err != nil {
		return fmt.Errorf("sending expiration notifications: %w", err)
	}

	if isJSON() {
		rows := make([]notificationRow, len(sent))
		for i, n := range sent {
			rows[i] = notificationRow{ShareID: n.Share.ID, Recipient: n.Recipient, Email: n.Email, Skipped: n.Skipped}
		}
		return printJSON(out, rows)
	}

	if len(sent) == 0 {
		fmt.Fprintln(out, "No shares expire within the next day.")
		return nil
	}
	for _, n := range sent {
		if n.Skipped {
			fmt.Fprintf(out, "Share %d: %s has no e-mail address, skipped\n", n.Share.ID, n.Recipient)
			continue
		}
		fmt.Fprintf(out, "Share %d: notified %s <%s>\n", n.Share.ID, n.Recipient, n.Email)
	}
	return nil
}

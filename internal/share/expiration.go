package share

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/email"
	"github.com/evcraddock/sharebox/internal/metrics"
)

// NotificationWindow is how far ahead expiring shares are reported.
const NotificationWindow = 24 * time.Hour

// APIPath is where the HTTP share API serves individual shares.
const APIPath = "/ocs/v2.php/apps/files_sharing/api/v1/shares"

// Sender delivers a plain-text message.
type Sender interface {
	Send(to []string, subject, body string) error
}

// Notification is the outcome of one expiration reminder.
type Notification struct {
	Share     *Share
	Recipient string
	Email     string
	// Skipped is set when the initiator has no e-mail address.
	Skipped bool
}

// ExpirationNotifier reminds share initiators about shares that expire soon.
type ExpirationNotifier struct {
	// BaseURL, when set, adds a link to the shared item to each reminder.
	BaseURL string

	shares  *Repository
	users   *auth.UserStore
	sender  Sender
	metrics *metrics.RepairMetrics
	now     func() time.Time
}

// NewExpirationNotifier creates a notifier. m may be nil.
func NewExpirationNotifier(db *sql.DB, sender Sender, m *metrics.RepairMetrics) *ExpirationNotifier {
	return &ExpirationNotifier{
		shares:  NewRepository(db),
		users:   auth.NewUserStore(db),
		sender:  sender,
		metrics: m,
		now:     time.Now,
	}
}

// Notify sends a reminder for every share expiring within the next
// NotificationWindow. Initiators without an e-mail address are skipped.
// A failed delivery stops the run.
func (n *ExpirationNotifier) Notify() ([]Notification, error) {
	now := n.now().UTC()
	expiring, err := n.shares.ExpiringBetween(now, now.Add(NotificationWindow))
	if err != nil {
		return nil, err
	}

	var out []Notification
	for _, s := range expiring {
		user, err := n.users.Get(s.SharedBy)
		if errors.Is(err, auth.ErrUserNotFound) {
			slog.Warn("share initiator not found", "share_id", s.ID, "uid", s.SharedBy)
			n.metrics.RecordNotification("skipped")
			out = append(out, Notification{Share: s, Recipient: s.SharedBy, Skipped: true})
			continue
		}
		if err != nil {
			return out, fmt.Errorf("looking up initiator of share %d: %w", s.ID, err)
		}
		if user.Email == "" {
			slog.Info("skipping expiration notification, no email", "share_id", s.ID, "uid", user.UID)
			n.metrics.RecordNotification("skipped")
			out = append(out, Notification{Share: s, Recipient: user.UID, Skipped: true})
			continue
		}

		subject, body := email.FormatExpirationNotice(email.ExpirationNotice{
			Recipient:  user.Name(),
			Item:       itemName(s),
			SharedWith: s.SharedWith,
			ExpiresAt:  *s.Expiration,
			URL:        n.itemURL(s),
		})
		if err := n.sender.Send([]string{user.Email}, subject, body); err != nil {
			n.metrics.RecordNotification("failed")
			return out, fmt.Errorf("notifying %s about share %d: %w", user.UID, s.ID, err)
		}
		n.metrics.RecordNotification("sent")
		slog.Info("sent expiration notification",
			"share_id", s.ID,
			"uid", user.UID,
			"expiration", s.Expiration.Format(time.RFC3339),
		)
		out = append(out, Notification{Share: s, Recipient: user.UID, Email: user.Email})
	}
	return out, nil
}

func (n *ExpirationNotifier) itemURL(s *Share) string {
	if n.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s%s/%d", strings.TrimRight(n.BaseURL, "/"), APIPath, s.ID)
}

func itemName(s *Share) string {
	if s.Target != "" {
		return s.Target
	}
	if s.Node != nil {
		return "/" + s.Node.Path
	}
	return fmt.Sprintf("file %d", s.NodeID)
}

// Package email provides notification formatting and SMTP sending for sharebox.
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/smtp"
	"os"
	"strings"
	"time"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// IsConfigured returns true if SMTP settings are present.
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Mailer sends plain-text mail, or prints it in dev mode.
type Mailer struct {
	cfg     SMTPConfig
	devMode bool
	out     io.Writer
}

// NewMailer creates a mailer. In dev mode, or without SMTP settings,
// messages are printed to stdout instead of being sent.
func NewMailer(cfg SMTPConfig, devMode bool) *Mailer {
	return &Mailer{cfg: cfg, devMode: devMode || !cfg.IsConfigured(), out: os.Stdout}
}

// SetOutput sets where dev mode messages are printed.
func (m *Mailer) SetOutput(w io.Writer) {
	m.out = w
}

// DevMode reports whether messages are printed instead of sent.
func (m *Mailer) DevMode() bool {
	return m.devMode
}

// Send delivers one message.
func (m *Mailer) Send(to []string, subject, body string) error {
	if m.devMode {
		_, err := fmt.Fprintf(m.out, "[DEV] Mail to %s\nSubject: %s\n\n%s\n", strings.Join(to, ", "), subject, body)
		return err
	}
	return Send(m.cfg, to, subject, body)
}

// ExpirationNotice describes a share about to expire.
type ExpirationNotice struct {
	Recipient  string
	Item       string
	SharedWith string
	ExpiresAt  time.Time
	// URL points at the shared item. Omitted from the body when empty.
	URL string
}

// FormatExpirationNotice builds the subject and plain-text body for a share
// expiration reminder.
func FormatExpirationNotice(n ExpirationNotice) (string, string) {
	subject := fmt.Sprintf("Share of %q expires soon", n.Item)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Hi %s,\n\n", n.Recipient)
	if n.SharedWith != "" {
		fmt.Fprintf(&buf, "Your share of %q with %s expires on %s.\n",
			n.Item, n.SharedWith, n.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	} else {
		fmt.Fprintf(&buf, "Your share of %q expires on %s.\n",
			n.Item, n.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&buf, "\nExtend the expiration date if the recipient still needs access.\n")
	if n.URL != "" {
		fmt.Fprintf(&buf, "\n%s\n", n.URL)
	}

	return subject, buf.String()
}

// Send sends an email via SMTP.
// Supports both port 465 (implicit TLS) and port 587 (STARTTLS).
func Send(cfg SMTPConfig, to []string, subject, body string) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	msg := buildMessage(cfg.From, to, subject, body)
	addr := cfg.Host + ":" + cfg.Port

	if cfg.Port == "465" {
		return sendImplicitTLS(cfg, addr, to, msg)
	}
	return sendSTARTTLS(cfg, addr, to, msg)
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

// sendImplicitTLS connects over TLS directly (port 465/SMTPS).
func sendImplicitTLS(cfg SMTPConfig, addr string, to []string, msg []byte) (err error) {
	tlsCfg := &tls.Config{ServerName: cfg.Host}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil && err == nil {
			err = fmt.Errorf("quit: %w", quitErr)
		}
	}()

	if cfg.User != "" {
		auth := smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return nil
}

// sendSTARTTLS connects plain then upgrades to TLS (port 587).
func sendSTARTTLS(cfg SMTPConfig, addr string, to []string, msg []byte) error {
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, cfg.From, to, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

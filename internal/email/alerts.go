// Package email sends operator alert mail over SMTP. Alerts are strictly
// internal: terminally failed jobs, handovers, stale outbound replies. No
// customer-facing mail leaves this system.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// AlertMailer delivers internal alert emails. A nil *AlertMailer is safe to
// call; alerts are then dropped with a log line.
type AlertMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	log      *logger.Logger
}

// NewAlertMailer builds the mailer, or nil when SMTP is not configured.
func NewAlertMailer(cfg config.AlertConfig, log *logger.Logger) *AlertMailer {
	if !cfg.IsAlertEmailEnabled() {
		return nil
	}
	return &AlertMailer{
		host:     cfg.GetSMTPHost(),
		port:     cfg.GetSMTPPort(),
		username: cfg.GetSMTPUsername(),
		password: cfg.GetSMTPPassword(),
		from:     cfg.GetAlertFromAddress(),
		to:       cfg.GetAlertToAddress(),
		log:      log,
	}
}

// SendAlert delivers one plain-text alert to the ops address.
func (m *AlertMailer) SendAlert(ctx context.Context, subject, body string) error {
	if m == nil {
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject("[visadesk] " + subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.log.Info("ops alert sent", "subject", subject)
	return nil
}

// Package notify emails the household when scheduled auto-payments fail.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/fredBills/pkg/config"
	"github.com/mcclellann/fredBills/pkg/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    config.SMTPConfig
	logger *logrus.Logger
	now    func() time.Time
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg config.SMTPConfig, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// NotifyAutoPayFailures sends a summary of an auto-pay run that had failures.
func (s *Sender) NotifyAutoPayFailures(ctx context.Context, result models.AutoPayResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.autoPayFailureEmail(result)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", s.cfg.NotifyEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.NotifyEmail, e.Subject)
	return nil
}

func (s *Sender) autoPayFailureEmail(result models.AutoPayResult) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.NotifyEmail}
	if result.Failed == 1 {
		e.Subject = "1 automatic bill payment failed"
	} else {
		e.Subject = fmt.Sprintf("%d automatic bill payments failed", result.Failed)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "The auto-pay run on %s paid %d bill(s) and could not pay %d.\n\n",
		s.now().Format("2006-01-02 15:04"), result.Processed, result.Failed)
	body.WriteString("Bills that still need attention:\n")
	for _, id := range result.FailedIDs {
		fmt.Fprintf(&body, "  - %s\n", id)
	}
	body.WriteString("\nThey will be retried on the next run.\n")
	e.Text = []byte(body.String())
	return e
}

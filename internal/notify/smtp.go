package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
)

// SMTP delivers notifications over plain SMTP with optional PLAIN auth.
type SMTP struct {
	cfg    *config.SMTPConfig
	logger *slog.Logger
	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates the SMTP notifier.
func NewSMTP(cfg *config.SMTPConfig, logger *slog.Logger) *SMTP {
	return &SMTP{cfg: cfg, logger: logger, send: smtp.SendMail}
}

func (s *SMTP) QACompleted(ctx context.Context, recipients []string, module *models.Module, result *models.QAResult) error {
	subject, body := qaCompletedBody(module, result)
	if err := s.deliver(recipients, subject, body); err != nil {
		return err
	}
	recordSent("qa_completed")
	return nil
}

func (s *SMTP) ApprovalDecided(ctx context.Context, recipients []string, workflow *models.ApprovalWorkflow) error {
	subject, body := approvalDecidedBody(workflow)
	if err := s.deliver(recipients, subject, body); err != nil {
		return err
	}
	recordSent("approval_decided")
	return nil
}

func (s *SMTP) deliver(recipients []string, subject, body string) error {
	to := dedupe(recipients)
	if len(to) == 0 {
		return nil
	}

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		s.cfg.From, strings.Join(to, ", "), subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(addr, auth, s.cfg.From, to, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func dedupe(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	var out []string
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

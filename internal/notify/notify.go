// Package notify delivers plain-text email for pipeline events: QA completion
// to the submitter and admins, and approval decisions to the requester. With
// notifications disabled or SMTP unconfigured a no-op implementation is used,
// so callers never branch on configuration.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
)

// Notifier sends pipeline event mail. Implementations are fire-and-forget:
// delivery failures are logged by callers, never propagated into the pipeline.
type Notifier interface {
	QACompleted(ctx context.Context, recipients []string, module *models.Module, result *models.QAResult) error
	ApprovalDecided(ctx context.Context, recipients []string, workflow *models.ApprovalWorkflow) error
}

// New selects the SMTP notifier when notifications are enabled and
// configured, the no-op otherwise.
func New(cfg *config.Config, logger *slog.Logger) Notifier {
	if !cfg.Notifications.Enabled || cfg.Notifications.SMTP.Host == "" {
		logger.Info("notifications disabled")
		return Noop{}
	}
	return NewSMTP(&cfg.Notifications.SMTP, logger)
}

// Noop drops every notification.
type Noop struct{}

func (Noop) QACompleted(context.Context, []string, *models.Module, *models.QAResult) error {
	return nil
}

func (Noop) ApprovalDecided(context.Context, []string, *models.ApprovalWorkflow) error {
	return nil
}

func qaCompletedBody(module *models.Module, result *models.QAResult) (subject, body string) {
	subject = fmt.Sprintf("QA completed for %s %s: %s", module.Name, module.Version, result.Recommendation)
	lines := []string{
		fmt.Sprintf("Quality analysis for module '%s' (version %s) has finished.", module.Name, module.Version),
		"",
		fmt.Sprintf("Overall score:   %.1f", result.OverallScore),
		fmt.Sprintf("Security score:  %.1f", result.SecurityScore),
		fmt.Sprintf("Recommendation:  %s", result.Recommendation),
		fmt.Sprintf("Module status:   %s", module.Status),
	}
	if len(result.Findings.Data) > 0 {
		lines = append(lines, "", fmt.Sprintf("Security findings: %d", len(result.Findings.Data)))
	}
	if len(result.DegradedProbes.Data) > 0 {
		lines = append(lines, "", fmt.Sprintf("Degraded probes: %s", strings.Join(result.DegradedProbes.Data, ", ")))
	}
	lines = append(lines, "", "— Marketplace Registry")
	return subject, strings.Join(lines, "\r\n")
}

func approvalDecidedBody(workflow *models.ApprovalWorkflow) (subject, body string) {
	subject = fmt.Sprintf("Approval workflow %s: %s", workflow.ID, workflow.Status)
	lines := []string{
		fmt.Sprintf("The approval workflow for %s %s has been decided: %s.",
			workflow.TargetKind, workflow.TargetID, workflow.Status),
	}
	if workflow.Comment != nil && *workflow.Comment != "" {
		lines = append(lines, "", fmt.Sprintf("Comment: %s", *workflow.Comment))
	}
	lines = append(lines, "", "— Marketplace Registry")
	return subject, strings.Join(lines, "\r\n")
}

func recordSent(event string) {
	telemetry.NotificationsSentTotal.WithLabelValues(event).Inc()
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/callrecon/backend/src/config"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
)

// NewAlertNotifier returns a Mailgun-backed notifier when alerting is fully
// configured, otherwise a notifier that only logs.
func NewAlertNotifier() AlertNotifier {
	if config.Cfg == nil ||
		config.Cfg.MailgunDomain == "" ||
		config.Cfg.MailgunPrivateAPIKey == "" ||
		config.Cfg.AlertRecipientEmail == "" {
		logger.L.Info("Mailgun alerting not configured, run errors will only be logged.")
		return &logAlertNotifier{}
	}

	mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
	logger.L.Info("Mailgun alert notifier initialized", "domain", config.Cfg.MailgunDomain)
	return &mailgunAlertNotifier{
		mg:             mg,
		senderEmail:    config.Cfg.AlertSenderEmail,
		recipientEmail: config.Cfg.AlertRecipientEmail,
	}
}

type mailgunAlertNotifier struct {
	mg             mailgun.Mailgun
	senderEmail    string
	recipientEmail string
}

func (n *mailgunAlertNotifier) NotifyRunErrors(summary *models.RunSummary) {
	subject := fmt.Sprintf("callrecon: run %s finished with %d errors", summary.RunID, len(summary.Errors))
	body := fmt.Sprintf(`Reconciliation run %s (%s, %s to %s) reported errors.

Matched:   %d
Unmatched: %d
Updated:   %d

Errors:
%s`,
		summary.RunID, summary.Category, summary.WindowStart, summary.WindowEnd,
		summary.MatchedCount, summary.UnmatchedCount, summary.UpdatedCount,
		strings.Join(summary.Errors, "\n"))

	message := n.mg.NewMessage(n.senderEmail, subject, body, n.recipientEmail)
	message.AddTag("run-errors")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	resp, id, err := n.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send run error alert via Mailgun",
			"error", err, "runID", summary.RunID, "mailgunResp", resp, "mailgunId", id)
		return
	}
	logger.L.Info("Run error alert sent via Mailgun", "runID", summary.RunID, "id", id)
}

type logAlertNotifier struct{}

func (n *logAlertNotifier) NotifyRunErrors(summary *models.RunSummary) {
	logger.L.Warn("Reconciliation run finished with errors",
		"runID", summary.RunID, "errorCount", len(summary.Errors), "errors", summary.Errors)
}

package notification

import (
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/model"
	"fmt"
	"html"
	"net/smtp"
	"strings"
)

// EmailNotifier implements the Notifier interface for sending emails.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.SMTPConfig) model.Notifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth}
}

// Send sends an email to the configured recipients.
func (n *EmailNotifier) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	recipients := strings.Split(n.cfg.To, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	err := smtp.SendMail(addr, n.auth, n.cfg.From, recipients, buildMessage(n.cfg, subject, body))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(cfg config.SMTPConfig, subject, body string) []byte {
	return []byte("To: " + cfg.To + "\r\n" +
		"From: " + cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		body)
}

// SuggestionMessage renders the notification for a newly created suggestion.
func SuggestionMessage(s model.Suggestion) (subject, body string) {
	subject = fmt.Sprintf("SentinelQoS: new policy suggestion for %s", s.Category)
	body = "<h1>SentinelQoS Policy Suggestion</h1>" +
		fmt.Sprintf("<p>Flow profile <code>%s</code> was escalated %d times and classified as <b>%s</b>.</p>",
			html.EscapeString(s.ProfileID), s.Votes, html.EscapeString(string(s.Category))) +
		fmt.Sprintf("<p>Proposed marking: DSCP %s (%s), tc class %s.</p>",
			html.EscapeString(s.Marking.DSCPClass), html.EscapeString(s.Marking.DSCPValue), html.EscapeString(s.Marking.TCClass)) +
		"<hr><h2>Rationale</h2><p>" + html.EscapeString(s.Rationale) + "</p>" +
		fmt.Sprintf("<p>Approve with <code>POST /suggestions/%s/approve</code> or deny with <code>POST /suggestions/%s/deny</code>.</p>",
			html.EscapeString(s.ID), html.EscapeString(s.ID))
	return subject, body
}

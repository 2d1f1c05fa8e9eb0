package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"
)

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Sender email address
	FromName string // Sender display name
}

const (
	DefaultFromEmail = "noreply@pixeldraft.dev"
	DefaultFromName  = "Pixeldraft"
)

const emailBoundary = "===============PIXELDRAFT_BOUNDARY==============="

var emailTemplate = template.Must(template.New("quota").Parse(`<!doctype html>
<html><body style="font-family: sans-serif">
<h2>{{.Subject}}</h2>
<p>{{.Body}}</p>
{{if .UpgradeURL}}<p><a href="{{.UpgradeURL}}">See plans</a></p>{{end}}
<p style="color:#888">&copy; {{.Year}} Pixeldraft</p>
</body></html>`))

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink emails quota alerts over SMTP.
//
// Works with Mailhog in development and any authenticated SMTP relay in
// production.
type EmailSink struct {
	config     SMTPConfig
	upgradeURL string
	send       sendFunc
	logger     *slog.Logger
}

// NewEmailSink creates an SMTP sink. upgradeURL is linked from every alert
// and may be empty.
func NewEmailSink(config SMTPConfig, upgradeURL string, logger *slog.Logger) (*EmailSink, error) {
	if config.Host == "" || config.Port == 0 {
		return nil, errors.New("email sink requires an smtp host and port")
	}
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}
	return &EmailSink{
		config:     config,
		upgradeURL: upgradeURL,
		send:       smtp.SendMail,
		logger:     logger,
	}, nil
}

// Name implements Sink.
func (s *EmailSink) Name() string { return "email" }

// Deliver implements Sink.
func (s *EmailSink) Deliver(ctx context.Context, e Event) error {
	if e.Email == "" {
		return NewPermanentError(fmt.Errorf("account %s has no email address", e.AccountID))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(e)
	if err != nil {
		return NewPermanentError(err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.send(addr, auth, s.config.From, []string{e.Email}, msg); err != nil {
		s.logger.Error("failed to send quota email",
			"event_id", e.ID,
			"account_id", e.AccountID,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("quota email sent",
		"event_id", e.ID,
		"account_id", e.AccountID,
		"kind", e.Kind,
	)
	return nil
}

// buildMessage constructs the raw multipart message with headers.
func (s *EmailSink) buildMessage(e Event) ([]byte, error) {
	var html bytes.Buffer
	err := emailTemplate.Execute(&html, map[string]interface{}{
		"Subject":    e.Subject(),
		"Body":       e.Body(),
		"UpgradeURL": s.upgradeURL,
		"Year":       time.Now().Year(),
	})
	if err != nil {
		return nil, fmt.Errorf("render quota email: %w", err)
	}

	text := e.Body()
	if s.upgradeURL != "" {
		text += "\n\nSee plans: " + s.upgradeURL
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", e.Email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", e.Subject())
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", emailBoundary)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", emailBoundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(text)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", emailBoundary)
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.Write(html.Bytes())
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", emailBoundary)
	return buf.Bytes(), nil
}

var _ Sink = (*EmailSink)(nil)

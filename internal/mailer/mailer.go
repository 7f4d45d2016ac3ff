// Package mailer composes the storefront's outgoing emails and hands them to a Sender.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Message is a plain-text email.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds the values mails are composed from.
type Config struct {
	AppName      string
	BaseURL      string
	AdminAddress string
}

// Mailer renders the storefront's emails.
type Mailer struct {
	sender    Sender
	cfg       Config
	templates *template.Template
}

// New parses the embedded templates and returns a Mailer.
func New(sender Sender, cfg Config) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{
		sender:    sender,
		cfg:       cfg,
		templates: tmpl,
	}, nil
}

// SendActivation mails the account activation link.
func (m *Mailer) SendActivation(ctx context.Context, to, name, code string, expiresAt time.Time) error {
	return m.send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Activate your %s account", m.cfg.AppName),
	}, "activation.txt", map[string]any{
		"AppName":   m.cfg.AppName,
		"Name":      name,
		"Link":      m.link("/activate", "code", code),
		"ExpiresAt": expiresAt,
	})
}

// SendPasswordReset mails the password reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error {
	return m.send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Reset your %s password", m.cfg.AppName),
	}, "password_reset.txt", map[string]any{
		"AppName":   m.cfg.AppName,
		"Name":      name,
		"Link":      m.link("/reset-password", "token", token),
		"ExpiresAt": expiresAt,
	})
}

// ContactForm is the content of a contact form submission.
type ContactForm struct {
	Name      string
	Email     string
	Subject   string
	Message   string
	IPAddress string
}

// SendContact forwards a contact submission to the shop admin with Reply-To set to the sender.
func (m *Mailer) SendContact(ctx context.Context, form ContactForm) error {
	return m.send(ctx, Message{
		To:      m.cfg.AdminAddress,
		ReplyTo: form.Email,
		Subject: "[Contact] " + form.Subject,
	}, "contact.txt", map[string]any{
		"AppName":   m.cfg.AppName,
		"Name":      form.Name,
		"Email":     form.Email,
		"Subject":   form.Subject,
		"Message":   form.Message,
		"IPAddress": form.IPAddress,
	})
}

func (m *Mailer) send(ctx context.Context, msg Message, name string, data any) error {
	var body bytes.Buffer
	if err := m.templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	msg.Body = body.String()
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func (m *Mailer) link(path, key, value string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + path + "?" + url.Values{key: {value}}.Encode()
}

// LogSender writes mails to the log instead of delivering them. It is used when no SMTP host is
// configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("mail not sent (no SMTP host configured)",
		zap.String("to", msg.To),
		zap.String("reply_to", msg.ReplyTo),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

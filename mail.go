package rw

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/rw/internal/logging"
	"github.com/GoCodeAlone/rw/registry"
)

// EmailPath is the registry path of the Mailer interface.
const EmailPath = "rw.email"

// Mailer sends mail. Applications declare it at EmailPath; when nothing
// is activated there by the end of configuration a LogMailer is used.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Mail is a message handed to a LogMailer.
type Mail struct {
	To      []string
	Subject string
	Body    string
}

// LogMailer logs mail instead of delivering it and keeps what it was
// given. It is meant for development and tests.
type LogMailer struct {
	logger Logger

	mu   sync.Mutex
	sent []Mail
}

// NewLogMailer creates a LogMailer writing to logger.
func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: logging.OrDiscard(logger)}
}

// PluginPath implements registry.PathProvider.
func (m *LogMailer) PluginPath() string {
	return EmailPath
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("%w: %q", ErrNoRecipients, subject)
	}
	m.mu.Lock()
	m.sent = append(m.sent, Mail{To: append([]string(nil), to...), Subject: subject, Body: body})
	m.mu.Unlock()
	m.logger.Info("Mail not delivered, logged instead", "to", to, "subject", subject)
	return nil
}

// Sent returns the messages logged so far.
func (m *LogMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// SendMail sends through the Mailer active in reg.
func SendMail(ctx context.Context, reg *registry.Registry, to []string, subject, body string) error {
	mailer, err := registry.Get[Mailer](reg, EmailPath)
	if err != nil {
		return err
	}
	return mailer.Send(ctx, to, subject, body)
}

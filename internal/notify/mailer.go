package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/wneessen/go-mail"
)

const (
	subject     = "New Conversation Record"
	notProvided = "Not provided"
)

// MailerConfig configures a [Mailer].
type MailerConfig struct {
	// AdminEmail is the only recipient. Empty makes every Notify call fail
	// with [ErrNotConfigured].
	AdminEmail string

	Host     string
	Port     int
	Username string
	Password string

	// From is the sender address. Defaults to Username.
	From string
}

// SendFunc delivers built messages. The default dials the configured SMTP
// server for every call.
type SendFunc func(ctx context.Context, msgs ...*mail.Msg) error

// MailerOption configures a [Mailer].
type MailerOption func(*Mailer)

// WithSendFunc replaces SMTP delivery, e.g. in tests.
func WithSendFunc(fn SendFunc) MailerOption {
	return func(m *Mailer) { m.send = fn }
}

// Mailer is a [Notifier] that sends one mail per notification to the admin
// address over SMTP.
type Mailer struct {
	cfg  MailerConfig
	send SendFunc
}

var _ Notifier = (*Mailer)(nil)

// NewMailer creates a Mailer. It does not connect until the first Notify.
func NewMailer(cfg MailerConfig, opts ...MailerOption) *Mailer {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	m := &Mailer{cfg: cfg}
	m.send = m.dialAndSend
	for _, o := range opts {
		o(m)
	}
	return m
}

// Configured reports whether an admin address is set.
func (m *Mailer) Configured() bool { return m.cfg.AdminEmail != "" }

// Notify implements [Notifier].
func (m *Mailer) Notify(ctx context.Context, contact Contact, conversation string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	msg, err := m.buildMessage(contact, conversation)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}

func (m *Mailer) buildMessage(contact Contact, conversation string) (*mail.Msg, error) {
	email, phone := orNotProvided(contact.Email), orNotProvided(contact.Phone)

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("notify: sender %q: %w", m.cfg.From, err)
	}
	if err := msg.To(m.cfg.AdminEmail); err != nil {
		return nil, fmt.Errorf("notify: recipient %q: %w", m.cfg.AdminEmail, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Customer Details:\n\nCustomer Email: %s\nCustomer Phone: %s\n\nConversation:\n%s\n",
		email, phone, conversation))
	msg.AddAlternativeString(mail.TypeTextHTML, fmt.Sprintf(
		"<h2>%s</h2>\n<p><strong>Customer Email:</strong> %s</p>\n<p><strong>Customer Phone:</strong> %s</p>\n<h3>Conversation:</h3>\n<pre>%s</pre>\n",
		subject, html.EscapeString(email), html.EscapeString(phone), html.EscapeString(conversation)))
	return msg, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msgs ...*mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msgs...)
}

func orNotProvided(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}

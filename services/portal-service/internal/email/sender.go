package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrInvalidMessage = errors.New("email: recipient and subject are required")

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail through an SMTP relay. Credentials are optional so
// local catchers such as Mailpit work without auth.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	port := strings.TrimSpace(cfg.Port)
	if port == "" {
		port = "1025"
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@homeaudit.local"
	}
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" || strings.TrimSpace(msg.Subject) == "" {
		return ErrInvalidMessage
	}
	raw := buildMessage(s.from, msg)
	return s.send(s.addr, s.auth, s.from, []string{headerSafe(msg.To)}, []byte(raw))
}

func buildMessage(from string, msg Message) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n",
		headerSafe(from),
		headerSafe(msg.To),
		mime.QEncoding.Encode("utf-8", headerSafe(msg.Subject)),
		msg.HTML,
	)
}

// headerSafe strips CR and LF so user supplied values cannot add headers.
func headerSafe(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// NoopSender logs instead of sending; used when no SMTP relay is configured.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(_ context.Context, msg Message) error {
	if s.logger != nil {
		s.logger.Info("email send skipped (noop sender)", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}

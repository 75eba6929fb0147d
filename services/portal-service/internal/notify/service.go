package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/email"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

type Kind string

const (
	KindConfirmation  Kind = "confirmation"
	KindReminder      Kind = "reminder"
	KindSigning       Kind = "signing"
	KindWelcome       Kind = "welcome"
	KindPasswordReset Kind = "password_reset"
)

var subjects = map[Kind]string{
	KindConfirmation:  "Your home security audit is confirmed",
	KindReminder:      "Reminder: your home security audit is coming up",
	KindSigning:       "Please sign your service agreement",
	KindWelcome:       "Welcome! Please verify your email",
	KindPasswordReset: "Reset your password",
}

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	BusinessName string
	// PublicBaseURL prefixes links placed in emails.
	PublicBaseURL string
}

type Service struct {
	sender    email.Sender
	cfg       Config
	logger    *slog.Logger
	templates map[Kind]*template.Template
}

func NewService(sender email.Sender, cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.BusinessName == "" {
		cfg.BusinessName = "Home Security Audits"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	tmpls := make(map[Kind]*template.Template, len(subjects))
	for kind := range subjects {
		t, err := template.New(string(kind)).ParseFS(templateFS, "templates/layout.html", "templates/"+string(kind)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		tmpls[kind] = t
	}
	return &Service{sender: sender, cfg: cfg, logger: logger, templates: tmpls}, nil
}

type data struct {
	BusinessName  string
	Name          string
	Date          string
	Time          string
	Address       string
	Amount        string
	AppointmentID string
	URL           string
}

func (s *Service) appointmentData(appt model.Appointment) data {
	return data{
		BusinessName:  s.cfg.BusinessName,
		Name:          appt.Name,
		Date:          appt.PreferredDate,
		Time:          appt.PreferredTime,
		Address:       appt.Address,
		Amount:        appt.Amount.String(),
		AppointmentID: appt.ID,
	}
}

func (s *Service) SendConfirmation(ctx context.Context, appt model.Appointment) error {
	return s.send(ctx, KindConfirmation, appt.Email, s.appointmentData(appt))
}

func (s *Service) SendReminder(ctx context.Context, appt model.Appointment) error {
	return s.send(ctx, KindReminder, appt.Email, s.appointmentData(appt))
}

func (s *Service) SendSigningLink(ctx context.Context, appt model.Appointment, signingURL string) error {
	d := s.appointmentData(appt)
	d.URL = signingURL
	return s.send(ctx, KindSigning, appt.Email, d)
}

func (s *Service) SendWelcome(ctx context.Context, c model.Customer, verificationToken string) error {
	return s.send(ctx, KindWelcome, c.Email, data{
		BusinessName: s.cfg.BusinessName,
		Name:         c.FullName,
		URL:          s.cfg.PublicBaseURL + "/api/auth/verify-email/" + url.PathEscape(verificationToken),
	})
}

func (s *Service) SendPasswordReset(ctx context.Context, c model.Customer, resetToken string) error {
	return s.send(ctx, KindPasswordReset, c.Email, data{
		BusinessName: s.cfg.BusinessName,
		Name:         c.FullName,
		URL:          s.cfg.PublicBaseURL + "/reset-password?token=" + url.QueryEscape(resetToken),
	})
}

func (s *Service) send(ctx context.Context, kind Kind, to string, d data) error {
	var body bytes.Buffer
	if err := s.templates[kind].ExecuteTemplate(&body, "layout", d); err != nil {
		metrics.NotificationsSent.WithLabelValues(string(kind), metrics.ResultFailure).Inc()
		return apperr.Unexpected("render "+string(kind)+" email", err)
	}

	err := s.sender.Send(ctx, email.Message{To: to, Subject: subjects[kind], HTML: body.String()})
	metrics.NotificationsSent.WithLabelValues(string(kind), metrics.Result(err)).Inc()
	if err != nil {
		return apperr.Integration("email delivery failed", err)
	}
	s.logger.Debug("email sent", "kind", kind, "to", to)
	return nil
}

package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/validation"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/agreements"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/reminders"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/booking")

type Store interface {
	InTx(ctx context.Context, fn func(context.Context, storage.AppointmentTx) error) error
	Appointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	ConfirmedOn(ctx context.Context, day string) ([]model.Appointment, error)
	SetAgreement(ctx context.Context, id, envelopeID, status string) error
}

type Notifier interface {
	SendConfirmation(ctx context.Context, appt model.Appointment) error
	SendSigningLink(ctx context.Context, appt model.Appointment, signingURL string) error
}

type Config struct {
	Currency       string
	FollowupDelay  time.Duration
	AgreementTitle string
	// Location decides which calendar day is "tomorrow" for day-before reminders.
	Location *time.Location
}

type Orchestrator struct {
	store      Store
	payments   payments.Gateway
	agreements agreements.Gateway
	notifier   Notifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(store Store, pay payments.Gateway, sign agreements.Gateway, notifier Notifier, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.FollowupDelay <= 0 {
		cfg.FollowupDelay = time.Hour
	}
	if cfg.AgreementTitle == "" {
		cfg.AgreementTitle = "Home Security Audit Service Agreement"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		store:      store,
		payments:   pay,
		agreements: sign,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

type CreateRequest struct {
	Name             string       `json:"name" validate:"required,min=2,max=200"`
	Email            string       `json:"email" validate:"required,email"`
	Phone            string       `json:"phone" validate:"required,min=10,max=32"`
	Address          string       `json:"address" validate:"required,min=10,max=500"`
	PreferredDate    string       `json:"preferredDate" validate:"required,datetime=2006-01-02"`
	PreferredTime    string       `json:"preferredTime" validate:"max=32"`
	SourceID         string       `json:"sourceId" validate:"required"`
	Amount           model.Amount `json:"amount" validate:"gt=0"`
	TitleProtection  bool         `json:"titleProtection"`
	ServicePackageID string       `json:"servicePackageId" validate:"omitempty,uuid"`
	Notes            string       `json:"notes" validate:"max=2000"`
}

func (r *CreateRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.PreferredDate = strings.TrimSpace(r.PreferredDate)
	r.PreferredTime = strings.TrimSpace(r.PreferredTime)
	r.SourceID = strings.TrimSpace(r.SourceID)
	r.Notes = strings.TrimSpace(r.Notes)
}

// Booking is the outcome of a successful CreateAppointment.
type Booking struct {
	Appointment model.Appointment
	Payment     payments.Charge
}

// CreateAppointment validates the request, charges the payment source and
// persists a confirmed appointment in one transaction. Only validation and
// payment failures are returned; email and e-signature failures are logged.
// owner is the customer id for authenticated bookings and nil for guests.
func (o *Orchestrator) CreateAppointment(ctx context.Context, req CreateRequest, owner *string) (_ Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.CreateAppointment")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.KindOf(err).String())
		}
		span.End()
	}()

	req.normalize()
	if err := validation.Struct(req); err != nil {
		return Booking{}, err
	}

	now := o.now().UTC()
	appt := model.Appointment{
		ID:              uuid.NewString(),
		CustomerID:      owner,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		PreferredDate:   req.PreferredDate,
		PreferredTime:   req.PreferredTime,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		Amount:          req.Amount,
		TitleProtection: req.TitleProtection,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ServicePackageID != "" {
		appt.ServicePackageID = &req.ServicePackageID
	}
	if req.Notes != "" {
		appt.Notes = &req.Notes
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID), attribute.Bool("appointment.guest", owner == nil))

	var charge payments.Charge
	err = o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		var err error
		charge, err = o.charge(ctx, payments.ChargeRequest{
			IdempotencyKey: appt.ID,
			SourceID:       req.SourceID,
			Amount:         req.Amount,
			Currency:       o.cfg.Currency,
			Description:    "Home security audit " + appt.PreferredDate,
			ReceiptEmail:   appt.Email,
		})
		if err != nil {
			return err
		}

		// A charge the provider is still processing leaves the appointment
		// pending until the payment webhook settles it.
		appt.PaymentID = &charge.ID
		appt.PaymentStatus = charge.Status
		eventType := outbox.EventAppointmentPending
		if charge.Status == model.PaymentCompleted {
			appt.Status = model.StatusConfirmed
			eventType = outbox.EventAppointmentConfirmed
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		job := reminders.NewJob(appt.ID, reminders.KindFollowup, appt.Email, now.Add(o.cfg.FollowupDelay))
		if _, err := tx.EnqueueReminder(ctx, job); err != nil {
			return err
		}
		return o.addEvent(ctx, tx, eventType, appt)
	})
	if err != nil {
		return Booking{}, classify("create appointment", err)
	}

	channel := "guest"
	if owner != nil {
		channel = "customer"
	}
	metrics.AppointmentsCreated.WithLabelValues(channel).Inc()
	o.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"status", appt.Status,
		"payment_id", charge.ID,
		"payment_status", charge.Status,
		"channel", channel,
	)

	if appt.Status == model.StatusConfirmed {
		o.sendConfirmation(ctx, appt)
	}
	appt = o.requestSignature(ctx, appt)

	return Booking{Appointment: appt, Payment: charge}, nil
}

func (o *Orchestrator) sendConfirmation(ctx context.Context, appt model.Appointment) {
	if err := o.notifier.SendConfirmation(ctx, appt); err != nil {
		o.logger.Error("confirmation email failed", "appointment_id", appt.ID, "err", err)
	}
}

func (o *Orchestrator) charge(ctx context.Context, req payments.ChargeRequest) (payments.Charge, error) {
	charge, err := o.payments.Charge(ctx, req)
	metrics.PaymentAttempts.WithLabelValues(o.payments.Name(), metrics.Result(err)).Inc()
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return payments.Charge{}, err
		}
		return payments.Charge{}, apperr.Integration("payment processing failed", err)
	}
	return charge, nil
}

// requestSignature sends the service agreement and the signing link. Failures
// leave the appointment without an envelope.
func (o *Orchestrator) requestSignature(ctx context.Context, appt model.Appointment) model.Appointment {
	res, err := o.agreements.SendForSignature(ctx, agreements.Envelope{
		AppointmentID: appt.ID,
		SignerName:    appt.Name,
		SignerEmail:   appt.Email,
		Title:         o.cfg.AgreementTitle,
	})
	metrics.AgreementRequests.WithLabelValues(o.agreements.Name(), metrics.Result(err)).Inc()
	if err != nil {
		o.logger.Error("agreement request failed", "appointment_id", appt.ID, "err", err)
		return appt
	}

	if err := o.store.SetAgreement(ctx, appt.ID, res.EnvelopeID, res.Status); err != nil {
		o.logger.Error("store agreement failed", "appointment_id", appt.ID, "envelope_id", res.EnvelopeID, "err", err)
		return appt
	}
	appt.EnvelopeID = &res.EnvelopeID
	appt.ESignStatus = &res.Status

	if res.SigningURL != "" {
		if err := o.notifier.SendSigningLink(ctx, appt, res.SigningURL); err != nil {
			o.logger.Error("signing link email failed", "appointment_id", appt.ID, "err", err)
		}
	}
	return appt
}

type appointmentEvent struct {
	AppointmentID string                  `json:"appointmentId"`
	CustomerID    *string                 `json:"customerId,omitempty"`
	Email         string                  `json:"email"`
	PreferredDate string                  `json:"preferredDate"`
	Status        model.AppointmentStatus `json:"status"`
	PaymentID     *string                 `json:"paymentId,omitempty"`
	PaymentStatus model.PaymentStatus     `json:"paymentStatus"`
	Amount        model.Amount            `json:"amount"`
	ESignStatus   *string                 `json:"esignStatus,omitempty"`
	At            time.Time               `json:"at"`
}

func (o *Orchestrator) addEvent(ctx context.Context, tx storage.AppointmentTx, eventType string, appt model.Appointment) error {
	evt, err := outbox.NewEvent("appointment", appt.ID, eventType, appointmentEvent{
		AppointmentID: appt.ID,
		CustomerID:    appt.CustomerID,
		Email:         appt.Email,
		PreferredDate: appt.PreferredDate,
		Status:        appt.Status,
		PaymentID:     appt.PaymentID,
		PaymentStatus: appt.PaymentStatus,
		Amount:        appt.Amount,
		ESignStatus:   appt.ESignStatus,
		At:            o.now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.AddEvent(ctx, evt)
}

var errAppointmentNotFound = apperr.NotFound("appointment not found")

// classify turns store errors into the client taxonomy, passing through
// errors that already carry a kind.
func classify(op string, err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return errAppointmentNotFound
	case errors.Is(err, storage.ErrInvalidReference):
		return apperr.Validation("unknown service package or officer")
	default:
		return apperr.Unexpected(op, err)
	}
}

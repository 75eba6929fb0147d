package booking

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeaudit/libs/apperr"
	"github.com/md-rashed-zaman/homeaudit/libs/validation"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/inbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/payments"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/reminders"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/storage"
)

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Status      *model.AppointmentStatus `json:"status" validate:"omitempty,oneof=pending confirmed in_progress completed cancelled"`
	ESignStatus *string                  `json:"esignStatus" validate:"omitempty,max=64"`
	OfficerID   *string                  `json:"officerId" validate:"omitempty,uuid"`
	ScheduledAt *time.Time               `json:"scheduledAt"`
	Notes       *string                  `json:"notes" validate:"omitempty,max=2000"`
}

func (p Patch) empty() bool {
	return p.Status == nil && p.ESignStatus == nil && p.OfficerID == nil && p.ScheduledAt == nil && p.Notes == nil
}

func (o *Orchestrator) UpdateAppointment(ctx context.Context, id string, p Patch) (model.Appointment, error) {
	if err := uuidOrNotFound(id); err != nil {
		return model.Appointment{}, err
	}
	if err := validation.Struct(p); err != nil {
		return model.Appointment{}, err
	}
	if p.empty() {
		return model.Appointment{}, apperr.Validation("no fields to update")
	}

	var appt model.Appointment
	err := o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		var err error
		appt, err = tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}

		now := o.now().UTC()
		if p.Status != nil {
			appt.Status = *p.Status
			if appt.Status == model.StatusCompleted && appt.CompletedAt == nil {
				appt.CompletedAt = &now
			}
		}
		if p.ESignStatus != nil {
			appt.ESignStatus = p.ESignStatus
		}
		if p.OfficerID != nil {
			appt.OfficerID = p.OfficerID
		}
		if p.ScheduledAt != nil {
			at := p.ScheduledAt.UTC()
			appt.ScheduledAt = &at
		}
		if p.Notes != nil {
			appt.Notes = p.Notes
		}
		appt.UpdatedAt = now

		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		return o.addEvent(ctx, tx, outbox.EventAppointmentUpdated, appt)
	})
	if err != nil {
		return model.Appointment{}, classify("update appointment", err)
	}
	return appt, nil
}

// SignatureEvent is an e-signature provider callback.
type SignatureEvent struct {
	Event      string `json:"event" validate:"required,max=64"`
	EnvelopeID string `json:"envelopeId" validate:"required,max=128"`
}

var signatureStatuses = map[string]string{
	"envelope-completed": model.ESignCompleted,
	"envelope-declined":  model.ESignDeclined,
	"envelope-voided":    model.ESignVoided,
}

// SignatureStatus maps a provider event onto the stored e-signature status.
// Unknown events are stored as received.
func SignatureStatus(event string) string {
	if s, ok := signatureStatuses[event]; ok {
		return s
	}
	return event
}

// HandleSignatureEvent applies a signature callback to the appointment owning
// the envelope. It reports false when the same event was already applied.
func (o *Orchestrator) HandleSignatureEvent(ctx context.Context, evt SignatureEvent) (model.Appointment, bool, error) {
	evt.Event = strings.TrimSpace(evt.Event)
	evt.EnvelopeID = strings.TrimSpace(evt.EnvelopeID)
	if err := validation.Struct(evt); err != nil {
		return model.Appointment{}, false, err
	}

	var (
		appt    model.Appointment
		applied bool
	)
	err := o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		var err error
		appt, err = tx.LockAppointmentByEnvelope(ctx, evt.EnvelopeID)
		if err != nil {
			return err
		}
		fresh, err := tx.RecordInbox(ctx, inbox.Key("envelope", evt.EnvelopeID+"|"+evt.Event), "esign."+evt.Event)
		if err != nil || !fresh {
			return err
		}

		status := SignatureStatus(evt.Event)
		appt.ESignStatus = &status
		appt.UpdatedAt = o.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		applied = true
		return o.addEvent(ctx, tx, outbox.EventAgreementStatus, appt)
	})
	if err != nil {
		return model.Appointment{}, false, classify("signature event", err)
	}
	if applied {
		o.logger.Info("agreement status updated",
			"appointment_id", appt.ID,
			"envelope_id", evt.EnvelopeID,
			"esign_status", *appt.ESignStatus,
		)
	}
	return appt, applied, nil
}

type PaymentRequest struct {
	AppointmentID string       `json:"appointmentId" validate:"required,uuid"`
	SourceID      string       `json:"sourceId" validate:"required"`
	Amount        model.Amount `json:"amount" validate:"gt=0"`
}

// RecordPayment charges for an existing appointment that is not paid yet.
func (o *Orchestrator) RecordPayment(ctx context.Context, req PaymentRequest) (payments.Charge, error) {
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.SourceID = strings.TrimSpace(req.SourceID)
	if err := validation.Struct(req); err != nil {
		return payments.Charge{}, err
	}

	var charge payments.Charge
	err := o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		appt, err := tx.LockAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		switch {
		case appt.PaymentStatus == model.PaymentCompleted:
			return apperr.Conflict("appointment is already paid")
		case appt.PaymentStatus == model.PaymentPending && appt.PaymentID != nil:
			return apperr.Conflict("a payment for this appointment is still processing")
		}

		charge, err = o.charge(ctx, payments.ChargeRequest{
			IdempotencyKey: "payment:" + appt.ID + ":" + req.SourceID,
			SourceID:       req.SourceID,
			Amount:         req.Amount,
			Currency:       o.cfg.Currency,
			Description:    "Home security audit " + appt.PreferredDate,
			ReceiptEmail:   appt.Email,
		})
		if err != nil {
			return err
		}

		appt.PaymentID = &charge.ID
		appt.PaymentStatus = charge.Status
		if appt.Status == model.StatusPending && charge.Status == model.PaymentCompleted {
			appt.Status = model.StatusConfirmed
		}
		appt.UpdatedAt = o.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		return o.addEvent(ctx, tx, outbox.EventPaymentStatus, appt)
	})
	if err != nil {
		return payments.Charge{}, classify("record payment", err)
	}
	return charge, nil
}

// PaymentEvent is a provider notification about an earlier charge.
type PaymentEvent struct {
	EventID   string
	PaymentID string
	Status    model.PaymentStatus
}

// ApplyPaymentStatus settles a pending payment: completed confirms a pending
// appointment, failed cancels it. A payment that already settled is never
// changed again. It reports false for replays and for settled payments.
// Unknown payment ids are NotFound.
func (o *Orchestrator) ApplyPaymentStatus(ctx context.Context, evt PaymentEvent) (bool, error) {
	if evt.EventID == "" || evt.PaymentID == "" {
		return false, apperr.Validation("payment event id and payment id are required")
	}
	if evt.Status != model.PaymentCompleted && evt.Status != model.PaymentFailed {
		return false, apperr.Validation("payment status must be completed or failed")
	}

	var (
		appt      model.Appointment
		applied   bool
		confirmed bool
	)
	err := o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		var err error
		appt, err = tx.LockAppointmentByPayment(ctx, evt.PaymentID)
		if err != nil {
			return err
		}
		fresh, err := tx.RecordInbox(ctx, inbox.Key("stripe", evt.EventID), "payment."+string(evt.Status))
		if err != nil || !fresh {
			return err
		}
		if appt.PaymentStatus != model.PaymentPending {
			o.logger.Warn("payment already settled",
				"appointment_id", appt.ID,
				"payment_id", evt.PaymentID,
				"payment_status", appt.PaymentStatus,
				"event_status", evt.Status,
			)
			return nil
		}

		appt.PaymentStatus = evt.Status
		if appt.Status == model.StatusPending {
			switch evt.Status {
			case model.PaymentCompleted:
				appt.Status = model.StatusConfirmed
				confirmed = true
			case model.PaymentFailed:
				appt.Status = model.StatusCancelled
			}
		}
		appt.UpdatedAt = o.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		applied = true
		return o.addEvent(ctx, tx, outbox.EventPaymentStatus, appt)
	})
	if err != nil {
		return false, classify("apply payment status", err)
	}
	if confirmed {
		o.sendConfirmation(ctx, appt)
	}
	return applied, nil
}

// SendTomorrowReminders enqueues a day-before reminder for every confirmed
// appointment scheduled tomorrow and returns how many were newly enqueued.
// Calling it again the same day enqueues nothing.
func (o *Orchestrator) SendTomorrowReminders(ctx context.Context) (int, error) {
	now := o.now()
	tomorrow := now.In(o.cfg.Location).AddDate(0, 0, 1).Format(model.DateLayout)

	appts, err := o.store.ConfirmedOn(ctx, tomorrow)
	if err != nil {
		return 0, apperr.Unexpected("list tomorrow's appointments", err)
	}
	if len(appts) == 0 {
		return 0, nil
	}

	enqueued := 0
	err = o.store.InTx(ctx, func(ctx context.Context, tx storage.AppointmentTx) error {
		for _, appt := range appts {
			ok, err := tx.EnqueueReminder(ctx, reminders.NewJob(appt.ID, reminders.KindDayBefore, appt.Email, now))
			if err != nil {
				return err
			}
			if ok {
				enqueued++
			}
		}
		return nil
	})
	if err != nil {
		return 0, classify("enqueue reminders", err)
	}
	o.logger.Info("day-before reminders enqueued", "date", tomorrow, "candidates", len(appts), "enqueued", enqueued)
	return enqueued, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (model.Appointment, error) {
	if err := uuidOrNotFound(id); err != nil {
		return model.Appointment{}, err
	}
	appt, err := o.store.Appointment(ctx, id)
	if err != nil {
		return model.Appointment{}, classify("get appointment", err)
	}
	return appt, nil
}

func (o *Orchestrator) List(ctx context.Context, limit int) ([]model.Appointment, error) {
	return o.list(ctx, storage.AppointmentFilter{Limit: limit})
}

func (o *Orchestrator) ListByCustomer(ctx context.Context, customerID string) ([]model.Appointment, error) {
	return o.list(ctx, storage.AppointmentFilter{CustomerID: customerID})
}

func (o *Orchestrator) ListByEmail(ctx context.Context, email string) ([]model.Appointment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Struct(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return nil, err
	}
	return o.list(ctx, storage.AppointmentFilter{Email: email})
}

func (o *Orchestrator) list(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	list, err := o.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, apperr.Unexpected("list appointments", err)
	}
	if list == nil {
		list = []model.Appointment{}
	}
	return list, nil
}

// uuidOrNotFound keeps malformed ids away from the uuid column.
func uuidOrNotFound(id string) error {
	if validation.Validator().Var(id, "required,uuid") != nil {
		return errAppointmentNotFound
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/inbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/reminders"
)

const appointmentColumns = `id::text, customer_id::text, name, email, phone, address, preferred_date::text,
	preferred_time, status, payment_id, payment_status, amount::text, title_protection, esign_status,
	envelope_id, service_package_id::text, officer_id::text, scheduled_at, completed_at, notes,
	created_at, updated_at`

// AppointmentFilter narrows ListAppointments. Empty fields do not filter.
type AppointmentFilter struct {
	CustomerID string
	Email      string
	Limit      int
}

// AppointmentTx is the set of writes available inside one booking transaction.
type AppointmentTx interface {
	InsertAppointment(ctx context.Context, a model.Appointment) error
	LockAppointment(ctx context.Context, id string) (model.Appointment, error)
	LockAppointmentByPayment(ctx context.Context, paymentID string) (model.Appointment, error)
	LockAppointmentByEnvelope(ctx context.Context, envelopeID string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) error
	EnqueueReminder(ctx context.Context, job reminders.Job) (bool, error)
	AddEvent(ctx context.Context, evt outbox.Event) error
	RecordInbox(ctx context.Context, eventID, eventType string) (bool, error)
}

type AppointmentRepository struct {
	pool      *db.Pool
	outbox    *outbox.Repository
	reminders *reminders.Repository
	inbox     *inbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, events *outbox.Repository, jobs *reminders.Repository, seen *inbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: events, reminders: jobs, inbox: seen}
}

// InTx runs fn in one database transaction; any error rolls back every write
// made through the AppointmentTx.
func (r *AppointmentRepository) InTx(ctx context.Context, fn func(context.Context, AppointmentTx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &appointmentTx{tx: tx, repo: r})
	})
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a                     model.Appointment
		status, paymentStatus string
		amount                string
	)
	err := row.Scan(&a.ID, &a.CustomerID, &a.Name, &a.Email, &a.Phone, &a.Address, &a.PreferredDate,
		&a.PreferredTime, &status, &a.PaymentID, &paymentStatus, &amount, &a.TitleProtection, &a.ESignStatus,
		&a.EnvelopeID, &a.ServicePackageID, &a.OfficerID, &a.ScheduledAt, &a.CompletedAt, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.PaymentStatus = model.PaymentStatus(paymentStatus)
	if a.Amount, err = model.ParseAmount(amount); err != nil {
		return model.Appointment{}, fmt.Errorf("appointment %s amount %q: %w", a.ID, amount, err)
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func (r *AppointmentRepository) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = $1
	`, id))
	return a, translate("appointment", err)
}

func (r *AppointmentRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR customer_id::text = $1)
		  AND ($2 = '' OR lower(email) = lower($2))
		ORDER BY created_at DESC
		LIMIT $3
	`, f.CustomerID, f.Email, f.Limit)
	if err != nil {
		return nil, translate("list appointments", err)
	}
	list, err := collectAppointments(rows)
	return list, translate("list appointments", err)
}

// ConfirmedOn lists confirmed appointments whose preferred date is day (YYYY-MM-DD).
func (r *AppointmentRepository) ConfirmedOn(ctx context.Context, day string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE preferred_date = $1::date AND status = 'confirmed'
		ORDER BY preferred_time, created_at
	`, day)
	if err != nil {
		return nil, translate("confirmed appointments", err)
	}
	list, err := collectAppointments(rows)
	return list, translate("confirmed appointments", err)
}

// SetAgreement records the envelope returned by the agreement gateway.
func (r *AppointmentRepository) SetAgreement(ctx context.Context, id, envelopeID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET envelope_id = $2, esign_status = $3, updated_at = now()
		WHERE id = $1
	`, id, envelopeID, status)
	if err != nil {
		return translate("set agreement", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("set agreement", pgx.ErrNoRows)
	}
	return nil
}

type appointmentTx struct {
	tx   pgx.Tx
	repo *AppointmentRepository
}

func (t *appointmentTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, customer_id, name, email, phone, address, preferred_date, preferred_time, status,
			 payment_id, payment_status, amount, title_protection, esign_status, envelope_id,
			 service_package_id, officer_id, scheduled_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12::numeric, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, a.ID, a.CustomerID, a.Name, a.Email, a.Phone, a.Address, a.PreferredDate, a.PreferredTime, string(a.Status),
		a.PaymentID, string(a.PaymentStatus), a.Amount.String(), a.TitleProtection, a.ESignStatus, a.EnvelopeID,
		a.ServicePackageID, a.OfficerID, a.ScheduledAt, a.Notes, a.CreatedAt, a.UpdatedAt)
	return translate("insert appointment", err)
}

func (t *appointmentTx) lock(ctx context.Context, op, column, value string) (model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE `+column+` = $1 FOR UPDATE
	`, value))
	return a, translate(op, err)
}

func (t *appointmentTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return t.lock(ctx, "lock appointment", "id", id)
}

func (t *appointmentTx) LockAppointmentByPayment(ctx context.Context, paymentID string) (model.Appointment, error) {
	return t.lock(ctx, "lock appointment by payment", "payment_id", paymentID)
}

func (t *appointmentTx) LockAppointmentByEnvelope(ctx context.Context, envelopeID string) (model.Appointment, error) {
	return t.lock(ctx, "lock appointment by envelope", "envelope_id", envelopeID)
}

func (t *appointmentTx) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			payment_id = $3,
			payment_status = $4,
			esign_status = $5,
			envelope_id = $6,
			officer_id = $7,
			scheduled_at = $8,
			completed_at = $9,
			notes = $10,
			updated_at = $11
		WHERE id = $1
	`, a.ID, string(a.Status), a.PaymentID, string(a.PaymentStatus), a.ESignStatus, a.EnvelopeID,
		a.OfficerID, a.ScheduledAt, a.CompletedAt, a.Notes, a.UpdatedAt)
	if err != nil {
		return translate("update appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return translate("update appointment", pgx.ErrNoRows)
	}
	return nil
}

func (t *appointmentTx) EnqueueReminder(ctx context.Context, job reminders.Job) (bool, error) {
	ok, err := t.repo.reminders.Enqueue(ctx, t.tx, job)
	return ok, translate("enqueue reminder", err)
}

func (t *appointmentTx) AddEvent(ctx context.Context, evt outbox.Event) error {
	return translate("add event", t.repo.outbox.Insert(ctx, t.tx, evt))
}

func (t *appointmentTx) RecordInbox(ctx context.Context, eventID, eventType string) (bool, error) {
	ok, err := t.repo.inbox.Record(ctx, t.tx, eventID, eventType)
	return ok, translate("record inbox", err)
}

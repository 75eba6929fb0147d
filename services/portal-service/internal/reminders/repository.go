package reminders

import (
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	otelx "github.com/md-rashed-zaman/homeaudit/libs/otel"
)

const (
	// KindFollowup is the reminder sent shortly after booking.
	KindFollowup = "followup"
	// KindDayBefore is the reminder sent the day before the visit.
	KindDayBefore = "day_before"
)

const (
	StatusPending = "pending"
	// StatusSending marks a claimed job. A job left in it was interrupted
	// mid-delivery and is not retried.
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	Kind           string
	Recipient      string
	DueAt          time.Time
	Attempts       int
	Trace          otelx.TraceContext
}

// NewJob keys the job by appointment and kind, so enqueueing twice is a no-op.
func NewJob(appointmentID, kind, recipient string, dueAt time.Time) Job {
	return Job{
		IdempotencyKey: Key(appointmentID, kind),
		AppointmentID:  appointmentID,
		Kind:           kind,
		Recipient:      recipient,
		DueAt:          dueAt.UTC(),
	}
}

func Key(appointmentID, kind string) string {
	return appointmentID + "|" + kind
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Enqueue reports whether a new job row was written.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, job Job) (bool, error) {
	trace := otelx.Capture(ctx)
	tag, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (idempotency_key, appointment_id, kind, recipient, due_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.AppointmentID, job.Kind, job.Recipient, job.DueAt, trace.Parent, trace.State)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DBTX is satisfied by *db.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Claim moves up to limit due jobs to sending and returns them oldest first.
// Run it outside a transaction so the claim is durable before any email goes out.
func (r *Repository) Claim(ctx context.Context, q DBTX, now time.Time, limit int) ([]Job, error) {
	rows, err := q.Query(ctx, `
		UPDATE reminder_jobs
		SET status = 'sending',
		    attempts = attempts + 1,
		    updated_at = now()
		WHERE id IN (
			SELECT id FROM reminder_jobs
			WHERE status = 'pending' AND due_at <= $1
			ORDER BY due_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, idempotency_key, appointment_id::text, kind, recipient, due_at, attempts, traceparent, tracestate
	`, now, limit)
	if err != nil {
		return nil, err
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Job, error) {
		var j Job
		err := row.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.Kind, &j.Recipient, &j.DueAt, &j.Attempts, &j.Trace.Parent, &j.Trace.State)
		return j, err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, func(a, b Job) int { return a.DueAt.Compare(b.DueAt) })
	return jobs, nil
}

// Finish records the terminal status of a claimed job. There are no retries,
// so a failed job keeps its error for operators and is never picked up again.
func (r *Repository) Finish(ctx context.Context, q DBTX, id int64, status string, lastError string) error {
	var errText *string
	if lastError != "" {
		errText = &lastError
	}
	_, err := q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2,
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1 AND status = 'sending'
	`, id, status, errText)
	return err
}

// Queue binds the repository to a connection pool for the worker.
type Queue struct {
	db   DBTX
	repo *Repository
}

func NewQueue(db DBTX, repo *Repository) *Queue {
	return &Queue{db: db, repo: repo}
}

func (q *Queue) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	return q.repo.Claim(ctx, q.db, now, limit)
}

func (q *Queue) Finish(ctx context.Context, id int64, status, lastError string) error {
	return q.repo.Finish(ctx, q.db, id, status, lastError)
}

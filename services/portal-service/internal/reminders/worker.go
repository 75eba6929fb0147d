package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/metrics"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

type AppointmentSource interface {
	Appointment(ctx context.Context, id string) (model.Appointment, error)
}

type Notifier interface {
	SendReminder(ctx context.Context, appt model.Appointment) error
}

// JobQueue hands out due jobs. Each call commits on its own.
type JobQueue interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Finish(ctx context.Context, id int64, status, lastError string) error
}

type Worker struct {
	jobs      JobQueue
	appts     AppointmentSource
	notifier  Notifier
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(jobs JobQueue, appts AppointmentSource, notifier Notifier, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		jobs:      jobs,
		appts:     appts,
		notifier:  notifier,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// processBatch claims due jobs before sending, so a crash or a failed status
// write can lose a reminder but never send it twice.
func (w *Worker) processBatch(ctx context.Context) error {
	jobs, err := w.jobs.Claim(ctx, w.now().UTC(), w.batchSize)
	if err != nil {
		return fmt.Errorf("claim reminders: %w", err)
	}

	var errs []error
	for _, job := range jobs {
		status, derr := w.deliver(job.Trace.Resume(ctx), job)
		lastError := ""
		if derr != nil {
			lastError = derr.Error()
			w.logger.Error("reminder delivery failed",
				"job_id", job.ID,
				"appointment_id", job.AppointmentID,
				"kind", job.Kind,
				"err", derr,
			)
		}
		metrics.ReminderJobs.WithLabelValues(job.Kind, status).Inc()
		if err := w.jobs.Finish(ctx, job.ID, status, lastError); err != nil {
			w.logger.Error("reminder status not recorded", "job_id", job.ID, "status", status, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var errNoRecipient = errors.New("appointment has no email")

// deliver sends one reminder and returns the job's terminal status.
func (w *Worker) deliver(ctx context.Context, job Job) (string, error) {
	appt, err := w.appts.Appointment(ctx, job.AppointmentID)
	if err != nil {
		return StatusFailed, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == model.StatusCancelled || appt.Status == model.StatusCompleted {
		return StatusSkipped, nil
	}
	if appt.Email == "" {
		return StatusFailed, errNoRecipient
	}
	if err := w.notifier.SendReminder(ctx, appt); err != nil {
		return StatusFailed, err
	}
	return StatusSent, nil
}

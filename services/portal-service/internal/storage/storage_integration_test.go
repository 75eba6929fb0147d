//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/inbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/outbox"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/reminders"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/testinfra"
)

func newAppointment(now time.Time) model.Appointment {
	return model.Appointment{
		ID:            uuid.NewString(),
		Name:          "Alex Morgan",
		Email:         "Alex@Example.com",
		Phone:         "555-010-2030",
		Address:       "12 Harbour Street, Springfield",
		PreferredDate: "2026-05-20",
		PreferredTime: "10:00",
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
		Amount:        model.MustAmount("225.00"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func countRows(t *testing.T, pool *db.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func TestAppointmentRepositoryIntegration(t *testing.T) {
	pool := testinfra.NewPostgres(t)
	repo := NewAppointmentRepository(pool, outbox.NewRepository(), reminders.NewRepository(), inbox.NewRepository())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	appt := newAppointment(now)
	err := repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if _, err := tx.EnqueueReminder(ctx, reminders.NewJob(appt.ID, reminders.KindFollowup, appt.Email, now)); err != nil {
			return err
		}
		evt, err := outbox.NewEvent("appointment", appt.ID, outbox.EventAppointmentPending, appt)
		if err != nil {
			return err
		}
		return tx.AddEvent(ctx, evt)
	})
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		got, err := repo.Appointment(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, "225.00", got.Amount.String())
		assert.Equal(t, "2026-05-20", got.PreferredDate)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Equal(t, 1, countRows(t, pool, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1`, appt.ID))

		list, err := repo.ListAppointments(ctx, AppointmentFilter{Email: "alex@example.com"})
		require.NoError(t, err)
		require.Len(t, list, 1, "email filter ignores case")
	})

	t.Run("rollback discards every write", func(t *testing.T) {
		other := newAppointment(now)
		boom := errors.New("charge failed")
		err := repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			if err := tx.InsertAppointment(ctx, other); err != nil {
				return err
			}
			if _, err := tx.EnqueueReminder(ctx, reminders.NewJob(other.ID, reminders.KindFollowup, other.Email, now)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		_, err = repo.Appointment(ctx, other.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, countRows(t, pool, `SELECT count(*) FROM reminder_jobs WHERE appointment_id = $1`, other.ID))
	})

	t.Run("unknown officer is an invalid reference", func(t *testing.T) {
		err := repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			a, err := tx.LockAppointment(ctx, appt.ID)
			if err != nil {
				return err
			}
			officer := uuid.NewString()
			a.OfficerID = &officer
			return tx.UpdateAppointment(ctx, a)
		})
		assert.ErrorIs(t, err, ErrInvalidReference)
	})

	t.Run("payment and envelope lookups", func(t *testing.T) {
		paymentID := "pi_" + uuid.NewString()[:8]
		err := repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			a, err := tx.LockAppointment(ctx, appt.ID)
			if err != nil {
				return err
			}
			a.PaymentID = &paymentID
			a.PaymentStatus = model.PaymentCompleted
			a.Status = model.StatusConfirmed
			return tx.UpdateAppointment(ctx, a)
		})
		require.NoError(t, err)
		require.NoError(t, repo.SetAgreement(ctx, appt.ID, "env_1", model.ESignSent))
		assert.ErrorIs(t, repo.SetAgreement(ctx, uuid.NewString(), "env_2", model.ESignSent), ErrNotFound)

		err = repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			byPayment, err := tx.LockAppointmentByPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			byEnvelope, err := tx.LockAppointmentByEnvelope(ctx, "env_1")
			if err != nil {
				return err
			}
			assert.Equal(t, appt.ID, byPayment.ID)
			assert.Equal(t, appt.ID, byEnvelope.ID)
			_, err = tx.LockAppointmentByEnvelope(ctx, "env")
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		confirmed, err := repo.ConfirmedOn(ctx, "2026-05-20")
		require.NoError(t, err)
		require.Len(t, confirmed, 1)
		assert.Equal(t, appt.ID, confirmed[0].ID)
	})

	t.Run("inbox ignores replays", func(t *testing.T) {
		var first, second bool
		require.NoError(t, repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			var err error
			first, err = tx.RecordInbox(ctx, "stripe:evt_1", "payment.completed")
			return err
		}))
		require.NoError(t, repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			var err error
			second, err = tx.RecordInbox(ctx, "stripe:evt_1", "payment.completed")
			return err
		}))
		assert.True(t, first)
		assert.False(t, second)
	})

	t.Run("locked rows block a second writer", func(t *testing.T) {
		err := repo.InTx(ctx, func(ctx context.Context, tx AppointmentTx) error {
			if _, err := tx.LockAppointment(ctx, appt.ID); err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
			defer cancel()
			err := repo.InTx(waitCtx, func(ctx context.Context, other AppointmentTx) error {
				_, err := other.LockAppointment(ctx, appt.ID)
				return err
			})
			assert.Error(t, err, "the second lock waits until the deadline")
			return nil
		})
		require.NoError(t, err)
	})
}

func TestCustomerRepositoryIntegration(t *testing.T) {
	pool := testinfra.NewPostgres(t)
	repo := NewCustomerRepository(pool, outbox.NewRepository())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	customer := model.Customer{
		ID:           uuid.NewString(),
		Email:        "casey@example.com",
		PasswordHash: "hash",
		FullName:     "Casey Reed",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	session := model.CustomerSession{
		ID: uuid.NewString(), CustomerID: customer.ID, TokenHash: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	require.NoError(t, repo.CreateCustomer(ctx, customer, session))

	dup := customer
	dup.ID = uuid.NewString()
	err := repo.CreateCustomer(ctx, dup, model.CustomerSession{
		ID: uuid.NewString(), CustomerID: dup.ID, TokenHash: "other", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.CustomerBySession(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, got.ID)
	_, err = repo.CustomerBySession(ctx, "live", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound, "expired sessions do not authenticate")

	_, err = pool.Exec(ctx, `UPDATE customers SET is_active = false WHERE id = $1`, customer.ID)
	require.NoError(t, err)
	_, err = repo.CustomerBySession(ctx, "live", now)
	assert.ErrorIs(t, err, ErrNotFound, "inactive customers do not authenticate")
	_, err = pool.Exec(ctx, `UPDATE customers SET is_active = true WHERE id = $1`, customer.ID)
	require.NoError(t, err)

	require.NoError(t, repo.SetResetToken(ctx, customer.ID, "reset", now.Add(time.Hour)))
	id, err := repo.ResetPassword(ctx, "reset", "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, id)
	assert.Zero(t, countRows(t, pool, `SELECT count(*) FROM customer_sessions WHERE customer_id = $1`, customer.ID),
		"a password reset ends every session")

	_, err = repo.ResetPassword(ctx, "reset", "again", now)
	assert.ErrorIs(t, err, ErrNotFound, "reset tokens are single use")
}

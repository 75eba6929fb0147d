//go:build integration

package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/testinfra"
)

func TestQueueClaimsEachJobOnce(t *testing.T) {
	pool := testinfra.NewPostgres(t)
	repo := NewRepository()
	queue := NewQueue(pool, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	apptID := uuid.NewString()
	_, err := pool.Exec(ctx, `
		INSERT INTO appointments (id, name, email, phone, address, preferred_date, amount)
		VALUES ($1, 'Alex Morgan', 'alex@example.com', '5550102030', '12 Harbour Street', '2026-05-20', 225)
	`, apptID)
	require.NoError(t, err)

	require.NoError(t, pool.InTx(ctx, func(tx pgx.Tx) error {
		jobs := []Job{
			NewJob(apptID, KindFollowup, "alex@example.com", now.Add(-time.Minute)),
			NewJob(apptID, KindDayBefore, "alex@example.com", now.Add(time.Hour)),
			NewJob(apptID, KindFollowup, "alex@example.com", now),
		}
		for i, j := range jobs {
			created, err := repo.Enqueue(ctx, tx, j)
			if err != nil {
				return err
			}
			assert.Equal(t, i < 2, created, "job %d", i)
		}
		return nil
	}))

	claimed, err := queue.Claim(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, KindFollowup, claimed[0].Kind)
	assert.Equal(t, 1, claimed[0].Attempts)

	again, err := queue.Claim(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "a claimed job is never handed out twice")

	require.NoError(t, queue.Finish(ctx, claimed[0].ID, StatusSent, ""))
	require.NoError(t, queue.Finish(ctx, claimed[0].ID, StatusFailed, "late"), "finishing twice is a no-op")

	var status string
	var lastError *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status, last_error FROM reminder_jobs WHERE id = $1`, claimed[0].ID).
		Scan(&status, &lastError))
	assert.Equal(t, StatusSent, status)
	assert.Nil(t, lastError)

	later, err := queue.Claim(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, KindDayBefore, later[0].Kind)
}

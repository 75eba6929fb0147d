package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("load customer: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(errors.New("boom")))

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "customers_email_key"}
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup), ""))
	assert.True(t, IsUniqueViolation(dup, "customers_email_key"))
	assert.False(t, IsUniqueViolation(dup, "appointments_envelope_id_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "appointments_officer_id_fkey"}
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("update: %w", fk)))
	assert.False(t, IsForeignKeyViolation(dup))
}

func TestMigrateWrapsGooseError(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var dir string
	gooseUp = func(_ context.Context, _ *Pool, d string) error {
		dir = d
		return errors.New("dirty")
	}

	fsys := fstest.MapFS{"00001_init.sql": &fstest.MapFile{Data: []byte("-- +goose Up\nSELECT 1;\n")}}
	err := Migrate(context.Background(), &Pool{}, fsys)
	require.Error(t, err)
	require.Contains(t, err.Error(), "apply migrations")
	require.Equal(t, ".", dir)
}

func TestReadyCheckWithoutPool(t *testing.T) {
	require.Error(t, ReadyCheck(nil)(context.Background()))
}

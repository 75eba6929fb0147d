package storage

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/homeaudit/libs/db"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: conflict")
	// ErrInvalidReference marks a foreign key pointing at a missing row.
	ErrInvalidReference = errors.New("storage: invalid reference")
)

// translate maps pgx errors onto the package sentinels, keeping the cause.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsUniqueViolation(err, ""):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidReference, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

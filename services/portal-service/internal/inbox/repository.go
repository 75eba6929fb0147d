// Package inbox remembers provider webhook deliveries so replays are ignored.
package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record returns false when eventID was already seen. It uses ON CONFLICT so a
// duplicate does not abort the surrounding transaction.
func (r *Repository) Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Key builds the inbox id of a provider event.
func Key(provider, id string) string {
	return provider + ":" + id
}

// Package inbox deduplicates consumed Kafka events by event id.
package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookit-app/bookit/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Record stores the event id. It returns false when the event was seen before.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, fmt.Errorf("inbox.Record: %w", err)
}

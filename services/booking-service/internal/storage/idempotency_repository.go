package storage

import (
	"context"
	"errors"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
)

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Completed reports whether a response was stored for the key.
func (rec IdempotencyRecord) Completed() bool {
	return rec.StatusCode > 0
}

// LockIdempotencyKey claims (businessID, key) for the current transaction and
// returns the stored record. exists is true when the key was seen before.
func (r *Repository) LockIdempotencyKey(ctx context.Context, businessID, key string) (IdempotencyRecord, bool, error) {
	const op = "storage.LockIdempotencyKey"

	rec, err := r.selectIdempotencyForUpdate(ctx, businessID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return IdempotencyRecord{}, false, err
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, classify(op, err)
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *Repository) FinalizeIdempotency(ctx context.Context, businessID, key, appointmentID string, statusCode int, response []byte) error {
	const op = "storage.FinalizeIdempotency"

	_, err := r.q.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID, statusCode, response)
	return classify(op, err)
}

func (r *Repository) selectIdempotencyForUpdate(ctx context.Context, businessID, key string) (IdempotencyRecord, error) {
	const op = "storage.selectIdempotencyForUpdate"

	var rec IdempotencyRecord
	var responseText string
	err := r.q.QueryRow(ctx, `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, classify(op, err)
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

package storage

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// classify wraps a pgx error with op and the matching apperr kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505", // unique_violation
			pgErr.Code == "23P01", // exclusion_violation
			pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01": // deadlock_detected
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrStorageConflict, pgErr.ConstraintName)
		case pgErr.Code == "22P02", // invalid_text_representation, e.g. malformed uuid
			pgErr.Code == "23503", // foreign_key_violation
			pgErr.Code == "23514": // check_violation
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrInvalidInput, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"): // operator intervention
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrStorageUnavailable, pgErr.Message)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %v", op, apperr.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

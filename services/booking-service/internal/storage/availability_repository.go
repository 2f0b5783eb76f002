package storage

import (
	"context"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListRules returns every weekly rule of the business, staff-scoped ones included.
func (r *Repository) ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error) {
	const op = "storage.ListRules"

	rows, err := r.q.Query(ctx, `
		SELECT id::text, business_id::text, staff_id::text, weekday, start_minute, end_minute
		FROM availability_rules
		WHERE business_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, businessID)
	if err != nil {
		return nil, classify(op, err)
	}
	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AvailabilityRule, error) {
		var (
			rule       model.AvailabilityRule
			weekday    int
			start, end int
		)
		if err := row.Scan(&rule.ID, &rule.BusinessID, &rule.StaffID, &weekday, &start, &end); err != nil {
			return model.AvailabilityRule{}, err
		}
		rule.Weekday = time.Weekday(weekday)
		rule.Start = localtime.Clock(start)
		rule.End = localtime.Clock(end)
		return rule, nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return rules, nil
}

// ReplaceRules swaps the weekly rules of one scope (the business when staffID
// is nil, else that staff member) for rules. Run it inside a transaction.
func (r *Repository) ReplaceRules(ctx context.Context, businessID string, staffID *string, rules []model.AvailabilityRule) error {
	const op = "storage.ReplaceRules"

	for _, rule := range rules {
		if rule.Weekday < time.Sunday || rule.Weekday > time.Saturday {
			return apperr.Invalid("weekday %d out of range", rule.Weekday)
		}
		if rule.Start < 0 || rule.End > localtime.EndOfDay || rule.End <= rule.Start {
			return apperr.Invalid("rule %s-%s must end after it starts", rule.Start, rule.End)
		}
	}

	if _, err := r.q.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE business_id = $1 AND staff_id IS NOT DISTINCT FROM $2::uuid
	`, businessID, staffID); err != nil {
		return classify(op, err)
	}
	for _, rule := range rules {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO availability_rules (id, business_id, staff_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), businessID, staffID, int(rule.Weekday), int(rule.Start), int(rule.End)); err != nil {
			return classify(op, err)
		}
	}
	return nil
}

func (r *Repository) ListExceptions(ctx context.Context, businessID string, from, to localtime.Date) ([]model.AvailabilityException, error) {
	const op = "storage.ListExceptions"

	rows, err := r.q.Query(ctx, `
		SELECT id::text, business_id::text, staff_id::text, exception_date, is_closed, start_minute, end_minute,
			COALESCE(reason, '')
		FROM availability_exceptions
		WHERE business_id = $1 AND exception_date BETWEEN $2 AND $3
		ORDER BY exception_date ASC
	`, businessID, dateParam(from), dateParam(to))
	if err != nil {
		return nil, classify(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AvailabilityException, error) {
		var (
			exc        model.AvailabilityException
			date       time.Time
			start, end *int
		)
		if err := row.Scan(&exc.ID, &exc.BusinessID, &exc.StaffID, &date, &exc.IsClosed, &start, &end, &exc.Reason); err != nil {
			return model.AvailabilityException{}, err
		}
		exc.Date = localtime.DateOf(date)
		if start != nil && end != nil {
			s, e := localtime.Clock(*start), localtime.Clock(*end)
			exc.Start, exc.End = &s, &e
		}
		return exc, nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// UpsertException stores the single exception for (business, staff, date),
// replacing any previous one.
func (r *Repository) UpsertException(ctx context.Context, exc model.AvailabilityException) (model.AvailabilityException, error) {
	const op = "storage.UpsertException"

	if exc.Date.IsZero() {
		return model.AvailabilityException{}, apperr.Invalid("date is required")
	}
	var start, end *int
	if !exc.IsClosed {
		if exc.Start == nil || exc.End == nil {
			return model.AvailabilityException{}, apperr.Invalid("open exceptions need start and end")
		}
		if *exc.Start < 0 || *exc.End > localtime.EndOfDay || *exc.End <= *exc.Start {
			return model.AvailabilityException{}, apperr.Invalid("exception %s-%s must end after it starts", *exc.Start, *exc.End)
		}
		s, e := int(*exc.Start), int(*exc.End)
		start, end = &s, &e
	} else {
		exc.Start, exc.End = nil, nil
	}
	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO availability_exceptions
			(id, business_id, staff_id, exception_date, is_closed, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		ON CONFLICT (business_id, (COALESCE(staff_id, '00000000-0000-0000-0000-000000000000'::uuid)), exception_date)
		DO UPDATE SET is_closed = EXCLUDED.is_closed,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			reason = EXCLUDED.reason,
			updated_at = now()
		RETURNING id::text
	`, exc.ID, exc.BusinessID, exc.StaffID, dateParam(exc.Date), exc.IsClosed, start, end, exc.Reason).Scan(&exc.ID)
	if err != nil {
		return model.AvailabilityException{}, classify(op, err)
	}
	return exc, nil
}

func (r *Repository) DeleteException(ctx context.Context, businessID, exceptionID string) error {
	const op = "storage.DeleteException"

	tag, err := r.q.Exec(ctx, `
		DELETE FROM availability_exceptions
		WHERE business_id = $1 AND id = $2
	`, businessID, exceptionID)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("exception")
	}
	return nil
}

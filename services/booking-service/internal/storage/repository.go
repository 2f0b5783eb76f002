package storage

import (
	"context"
	"time"

	"github.com/bookit-app/bookit/libs/db"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

// Repository is the PostgreSQL store for businesses, availability and
// appointments. It runs on whatever Querier it was built with, so the same
// code serves pool reads and transactional writes.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// WithQuerier returns a repository bound to q, typically a pgx.Tx.
func (r *Repository) WithQuerier(q db.Querier) *Repository {
	return &Repository{q: q}
}

// LockBusiness takes a transaction-scoped advisory lock serializing bookings
// of one business. Only meaningful when the repository is bound to a tx.
func (r *Repository) LockBusiness(ctx context.Context, businessID string) error {
	const op = "storage.LockBusiness"

	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+businessID)
	return classify(op, err)
}

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (model.Business, error) {
	const op = "storage.GetBusiness"

	var b model.Business
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, slug, timezone
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Slug, &b.Timezone)
	if err != nil {
		return model.Business{}, classify(op, err)
	}
	return b, nil
}

func (r *Repository) GetBusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	const op = "storage.GetBusinessBySlug"

	var b model.Business
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, slug, timezone
		FROM businesses
		WHERE slug = $1
	`, slug).Scan(&b.ID, &b.Name, &b.Slug, &b.Timezone)
	if err != nil {
		return model.Business{}, classify(op, err)
	}
	return b, nil
}

const serviceColumns = `id::text, business_id::text, name, duration_min, buffer_before_min, buffer_after_min,
	max_concurrent, price_cents, deposit_cents, active`

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMin, &s.BufferBeforeMin, &s.BufferAfterMin,
		&s.MaxConcurrent, &s.PriceCents, &s.DepositCents, &s.Active)
	return s, err
}

func (r *Repository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	const op = "storage.GetService"

	s, err := scanService(r.q.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID))
	if err != nil {
		return model.Service{}, classify(op, err)
	}
	return s, nil
}

func (r *Repository) GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, error) {
	const op = "storage.GetStaff"

	var s model.Staff
	err := r.q.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, active
		FROM staff
		WHERE business_id = $1 AND id = $2
	`, businessID, staffID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.Active)
	if err != nil {
		return model.Staff{}, classify(op, err)
	}
	return s, nil
}

func (r *Repository) ListQualifiedStaff(ctx context.Context, businessID, serviceID string) ([]model.Staff, error) {
	const op = "storage.ListQualifiedStaff"

	rows, err := r.q.Query(ctx, `
		SELECT st.id::text, st.business_id::text, st.name, st.active
		FROM staff st
		JOIN staff_services ss ON ss.staff_id = st.id
		WHERE st.business_id = $1 AND ss.service_id = $2 AND st.active
		ORDER BY st.name ASC, st.id ASC
	`, businessID, serviceID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Active); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, classify(op, rows.Err())
	}
	return out, nil
}

func (r *Repository) HasStaff(ctx context.Context, businessID string) (bool, error) {
	const op = "storage.HasStaff"

	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM staff WHERE business_id = $1 AND active)`, businessID).Scan(&exists)
	if err != nil {
		return false, classify(op, err)
	}
	return exists, nil
}

// dateParam encodes a local date for a Postgres date column.
func dateParam(d localtime.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

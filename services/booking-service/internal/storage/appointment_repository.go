package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id::text, business_id::text, service_id::text, staff_id::text, customer_name,
	customer_email, customer_phone, starts_at, ends_at, buffer_before_min, buffer_after_min, status,
	canceled_at, COALESCE(cancel_reason, ''), created_at`

func scanAppointment(row scanner) (model.Appointment, error) {
	var (
		appt   model.Appointment
		status string
	)
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.BufferBeforeMin,
		&appt.BufferAfterMin,
		&status,
		&appt.CanceledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	appt.Status = model.Status(status)
	return appt, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

// ListBusy returns non-canceled appointments intersecting [from, to). A nil
// staffID returns every appointment of the business. With a staffID it also
// returns appointments without staff, which occupy every staff member.
func (r *Repository) ListBusy(ctx context.Context, businessID string, staffID *string, from, to time.Time) ([]model.Appointment, error) {
	const op = "storage.ListBusy"

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND ($2::uuid IS NULL OR staff_id = $2::uuid OR staff_id IS NULL)
			AND status <> 'canceled'
			AND starts_at < $4
			AND ends_at > $3
		ORDER BY starts_at ASC
	`, businessID, staffID, from, to)
	if err != nil {
		return nil, classify(op, err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, classify(op, err)
	}
	return appts, nil
}

func (r *Repository) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	const op = "storage.CreateAppointment"

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			starts_at, ends_at, buffer_before_min, buffer_after_min, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, appt.ID, appt.BusinessID, appt.ServiceID, appt.StaffID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.StartTime, appt.EndTime, appt.BufferBeforeMin, appt.BufferAfterMin, string(appt.Status)).Scan(&appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, classify(op, err)
	}
	return appt, nil
}

func (r *Repository) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	const op = "storage.GetAppointmentForUpdate"

	appt, err := scanAppointment(r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID))
	if err != nil {
		return model.Appointment{}, classify(op, err)
	}
	return appt, nil
}

// UpdateStatus writes the new status. Moving to canceled also stamps
// canceled_at and the reason.
func (r *Repository) UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.Status, reason string) (model.Appointment, error) {
	const op = "storage.UpdateStatus"

	appt, err := scanAppointment(r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			canceled_at = CASE WHEN $3 = 'canceled' THEN now() ELSE canceled_at END,
			cancel_reason = CASE WHEN $3 = 'canceled' THEN NULLIF($4, '') ELSE cancel_reason END,
			updated_at = now()
		WHERE id = $1 AND business_id = $2
		RETURNING `+appointmentColumns,
		appointmentID, businessID, string(status), reason))
	if err != nil {
		return model.Appointment{}, classify(op, err)
	}
	return appt, nil
}

type AppointmentFilter struct {
	BusinessID string
	StaffID    string
	Status     model.Status
	From       *time.Time
	To         *time.Time
	Limit      int
}

func (r *Repository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	const op = "storage.ListAppointments"

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	where := []string{"business_id = $1"}
	args := []any{f.BusinessID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.StaffID != "" {
		add("staff_id = $%d", f.StaffID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("starts_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("starts_at < $%d", *f.To)
	}
	args = append(args, f.Limit)

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY starts_at DESC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, classify(op, err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, classify(op, err)
	}
	return appts, nil
}

// Package booking owns the write side: creating appointments and moving them
// through their status lifecycle. Every write runs in one transaction that
// also records the outbox event.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bookit-app/bookit/libs/db"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/bookit-app/bookit/services/booking-service/internal/outbox"
	"github.com/bookit-app/bookit/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Store is the transactional view of storage the booking flow needs.
type Store interface {
	availability.Store
	LockBusiness(ctx context.Context, businessID string) error
	LockIdempotencyKey(ctx context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, businessID, key, appointmentID string, statusCode int, response []byte) error
	CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, businessID, appointmentID string, status model.Status, reason string) (model.Appointment, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type EventWriter interface {
	Insert(ctx context.Context, q db.Querier, evt outbox.Event) error
}

type Service struct {
	db     TxRunner
	bind   func(q db.Querier) Store
	events EventWriter
	engine *availability.Engine
	logger *slog.Logger
}

// NewService wires the flow. bind returns a Store running on the given
// transaction.
func NewService(runner TxRunner, bind func(q db.Querier) Store, events EventWriter, engine *availability.Engine, logger *slog.Logger) *Service {
	return &Service{db: runner, bind: bind, events: events, engine: engine, logger: logger}
}

type BookRequest struct {
	BusinessID     string
	ServiceID      string
	StaffID        *string // nil books the first free qualified staff
	Date           localtime.Date
	Start          localtime.Clock
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	IdempotencyKey string
}

func (r BookRequest) validate() error {
	if r.BusinessID == "" || r.ServiceID == "" {
		return apperr.Invalid("business_id and service_id are required")
	}
	if r.Date.IsZero() {
		return apperr.Invalid("date is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return apperr.Invalid("customer_name is required")
	}
	if r.CustomerEmail == "" && r.CustomerPhone == "" {
		return apperr.Invalid("customer_email or customer_phone is required")
	}
	if r.CustomerEmail != "" && !strings.Contains(r.CustomerEmail, "@") {
		return apperr.Invalid("customer_email is malformed")
	}
	return nil
}

// Confirmation is the response body of a successful booking. It is also what
// gets stored against an idempotency key.
type Confirmation struct {
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id,omitempty"`
	Status        string `json:"status"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	Timezone      string `json:"timezone"`
}

// Outcome describes a Book call. When Replayed is set the request reused an
// idempotency key and StatusCode/Payload hold the first response verbatim.
type Outcome struct {
	Confirmation Confirmation
	Replayed     bool
	StatusCode   int
	Payload      []byte
}

// Book creates an appointment if the slot is still free. The business is
// locked for the transaction so concurrent bookings re-check against each
// other's writes.
func (s *Service) Book(ctx context.Context, req BookRequest) (Outcome, error) {
	const op = "booking.Book"

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := req.validate(); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}

	var (
		out     Outcome
		slotErr error
	)
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		store := s.bind(tx)

		if req.IdempotencyKey != "" {
			rec, exists, err := store.LockIdempotencyKey(ctx, req.BusinessID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists && rec.Completed() {
				out = Outcome{Replayed: true, StatusCode: rec.StatusCode, Payload: rec.ResponsePayload}
				if rec.StatusCode == http.StatusCreated {
					if err := json.Unmarshal(rec.ResponsePayload, &out.Confirmation); err != nil {
						return fmt.Errorf("decode stored response: %w", err)
					}
				}
				return nil
			}
		}

		if err := store.LockBusiness(ctx, req.BusinessID); err != nil {
			return err
		}

		engine := s.engine.WithStore(store)
		staffID, ok, err := engine.FindFreeStaff(ctx, availability.SlotCheck{
			BusinessID: req.BusinessID,
			ServiceID:  req.ServiceID,
			StaffID:    req.StaffID,
			Date:       req.Date,
			Start:      req.Start,
		})
		if err != nil {
			return err
		}
		if !ok {
			slotErr = fmt.Errorf("%w: %s %s", apperr.ErrSlotUnavailable, req.Date, req.Start)
			if req.IdempotencyKey == "" {
				return slotErr
			}
			// The rejection is stored so a retry with the same key gets the
			// same answer even if the slot frees up later.
			body, _ := json.Marshal(map[string]string{"error": slotErr.Error()})
			return store.FinalizeIdempotency(ctx, req.BusinessID, req.IdempotencyKey, "", http.StatusConflict, body)
		}

		appt, tz, err := s.newAppointment(ctx, store, req, staffID)
		if err != nil {
			return err
		}
		appt, err = store.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}

		evt, err := outbox.AppointmentBooked(appt)
		if err != nil {
			return err
		}
		if err := s.events.Insert(ctx, tx, evt); err != nil {
			return err
		}

		out.Confirmation = confirmationFor(appt, tz)
		out.StatusCode = http.StatusCreated
		if req.IdempotencyKey != "" {
			body, err := json.Marshal(out.Confirmation)
			if err != nil {
				return err
			}
			out.Payload = body
			if err := store.FinalizeIdempotency(ctx, req.BusinessID, req.IdempotencyKey, appt.ID, http.StatusCreated, body); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	if slotErr != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, slotErr)
	}
	if !out.Replayed {
		s.logger.Info("appointment booked",
			"appointment_id", out.Confirmation.AppointmentID,
			"business_id", req.BusinessID,
			"service_id", req.ServiceID,
			"starts_at", out.Confirmation.StartsAt,
		)
	}
	return out, nil
}

// newAppointment resolves the instant interval and snapshots the service
// buffers. A service that takes a deposit starts out pending.
func (s *Service) newAppointment(ctx context.Context, store Store, req BookRequest, staffID *string) (model.Appointment, string, error) {
	business, err := store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return model.Appointment{}, "", err
	}
	loc, err := localtime.LoadZone(business.Timezone)
	if err != nil {
		return model.Appointment{}, "", err
	}
	service, err := store.GetService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, "", err
	}
	start, err := localtime.ToInstant(req.Date, req.Start, loc)
	if err != nil {
		return model.Appointment{}, "", apperr.Invalid("%v", err)
	}

	status := model.StatusConfirmed
	if service.DepositCents > 0 {
		status = model.StatusPending
	}
	return model.Appointment{
		BusinessID:      req.BusinessID,
		ServiceID:       req.ServiceID,
		StaffID:         staffID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		StartTime:       start.UTC(),
		EndTime:         start.Add(service.Duration()).UTC(),
		BufferBeforeMin: service.BufferBeforeMin,
		BufferAfterMin:  service.BufferAfterMin,
		Status:          status,
	}, business.Timezone, nil
}

func confirmationFor(appt model.Appointment, tz string) Confirmation {
	c := Confirmation{
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		StartsAt:      appt.StartTime.UTC().Format(time.RFC3339),
		EndsAt:        appt.EndTime.UTC().Format(time.RFC3339),
		Timezone:      tz,
	}
	if appt.StaffID != nil {
		c.StaffID = *appt.StaffID
	}
	return c
}

// ChangeStatus moves an appointment to next. Re-applying the current status
// returns the appointment unchanged and emits nothing.
func (s *Service) ChangeStatus(ctx context.Context, businessID, appointmentID string, next model.Status, reason string) (model.Appointment, error) {
	const op = "booking.ChangeStatus"

	if businessID == "" || appointmentID == "" {
		return model.Appointment{}, fmt.Errorf("%s: %w", op, apperr.Invalid("business_id and appointment_id are required"))
	}

	var (
		appt     model.Appointment
		previous model.Status
	)
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		store := s.bind(tx)

		current, err := store.GetAppointmentForUpdate(ctx, businessID, appointmentID)
		if err != nil {
			return err
		}
		previous = current.Status
		if current.Status == next {
			appt = current
			return nil
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, current.Status, next)
		}

		appt, err = store.UpdateStatus(ctx, businessID, appointmentID, next, strings.TrimSpace(reason))
		if err != nil {
			return err
		}
		evt, err := outbox.AppointmentStatusChanged(appt, previous)
		if err != nil {
			return err
		}
		return s.events.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%s: %w", op, err)
	}
	if previous != next {
		s.logger.Info("appointment status changed",
			"appointment_id", appt.ID,
			"business_id", businessID,
			"from", previous,
			"to", next,
		)
	}
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error) {
	return s.ChangeStatus(ctx, businessID, appointmentID, model.StatusCanceled, reason)
}

// IsReplayConflict reports whether a replayed outcome carries a stored
// rejection rather than a confirmation.
func (o Outcome) IsReplayConflict() bool {
	return o.Replayed && o.StatusCode != http.StatusCreated
}

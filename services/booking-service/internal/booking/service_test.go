package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
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

// memStore is a single-business in-memory Store. Writes made inside a failed
// transaction are rolled back by memRunner.
type memStore struct {
	business     model.Business
	services     map[string]model.Service
	rules        []model.AvailabilityRule
	appointments []model.Appointment
	idempotency  map[string]storage.IdempotencyRecord
	locks        int
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		business: model.Business{ID: "b1", Name: "Salon", Slug: "salon", Timezone: "UTC"},
		services: map[string]model.Service{
			"cut":   {ID: "cut", BusinessID: "b1", DurationMin: 30, BufferAfterMin: 15, MaxConcurrent: 1, Active: true},
			"color": {ID: "color", BusinessID: "b1", DurationMin: 60, MaxConcurrent: 1, DepositCents: 2000, Active: true},
		},
		rules: []model.AvailabilityRule{
			{ID: "r1", BusinessID: "b1", Weekday: time.Monday, Start: localtime.ClockOf(9, 0), End: localtime.ClockOf(17, 0)},
		},
		idempotency: map[string]storage.IdempotencyRecord{},
	}
}

func (m *memStore) GetBusiness(_ context.Context, id string) (model.Business, error) {
	if id != m.business.ID {
		return model.Business{}, apperr.NotFound("business")
	}
	return m.business, nil
}

func (m *memStore) GetService(_ context.Context, _, id string) (model.Service, error) {
	s, ok := m.services[id]
	if !ok {
		return model.Service{}, apperr.NotFound("service")
	}
	return s, nil
}

func (m *memStore) GetStaff(context.Context, string, string) (model.Staff, error) {
	return model.Staff{}, apperr.NotFound("staff")
}

func (m *memStore) ListQualifiedStaff(context.Context, string, string) ([]model.Staff, error) {
	return nil, nil
}

func (m *memStore) HasStaff(context.Context, string) (bool, error) { return false, nil }

func (m *memStore) ListRules(context.Context, string) ([]model.AvailabilityRule, error) {
	return m.rules, nil
}

func (m *memStore) ListExceptions(context.Context, string, localtime.Date, localtime.Date) ([]model.AvailabilityException, error) {
	return nil, nil
}

func (m *memStore) ListBusy(_ context.Context, _ string, _ *string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.appointments {
		if a.Status.Occupies() && a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) LockBusiness(context.Context, string) error {
	m.locks++
	return nil
}

func (m *memStore) LockIdempotencyKey(_ context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := m.idempotency[key]
	if !ok {
		rec = storage.IdempotencyRecord{BusinessID: businessID, IdempotencyKey: key}
		m.idempotency[key] = rec
	}
	return rec, ok, nil
}

func (m *memStore) FinalizeIdempotency(_ context.Context, businessID, key, appointmentID string, statusCode int, response []byte) error {
	m.idempotency[key] = storage.IdempotencyRecord{
		BusinessID:      businessID,
		IdempotencyKey:  key,
		AppointmentID:   appointmentID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

func (m *memStore) CreateAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	m.nextID++
	appt.ID = "appt-" + string(rune('0'+m.nextID))
	appt.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.appointments = append(m.appointments, appt)
	return appt, nil
}

func (m *memStore) GetAppointmentForUpdate(_ context.Context, _, id string) (model.Appointment, error) {
	for _, a := range m.appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, apperr.NotFound("appointment")
}

func (m *memStore) UpdateStatus(_ context.Context, _, id string, status model.Status, reason string) (model.Appointment, error) {
	for i, a := range m.appointments {
		if a.ID != id {
			continue
		}
		a.Status = status
		if status == model.StatusCanceled {
			at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
			a.CanceledAt = &at
			a.CancelReason = reason
		}
		m.appointments[i] = a
		return a, nil
	}
	return model.Appointment{}, apperr.NotFound("appointment")
}

// memRunner snapshots the store before each transaction and restores it when
// fn fails.
type memRunner struct{ store *memStore }

func (r memRunner) InTx(_ context.Context, fn func(pgx.Tx) error) error {
	appts := append([]model.Appointment(nil), r.store.appointments...)
	keys := make(map[string]storage.IdempotencyRecord, len(r.store.idempotency))
	for k, v := range r.store.idempotency {
		keys[k] = v
	}
	if err := fn(nil); err != nil {
		r.store.appointments = appts
		r.store.idempotency = keys
		return err
	}
	return nil
}

type memEvents struct{ events []outbox.Event }

func (m *memEvents) Insert(_ context.Context, _ db.Querier, evt outbox.Event) error {
	m.events = append(m.events, evt)
	return nil
}

var monday = localtime.NewDate(2024, time.January, 15)

func newTestService(store *memStore) (*Service, *memEvents) {
	events := &memEvents{}
	engine := availability.NewEngine(store, availability.Config{
		Granularity: 15,
		Now:         func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	svc := NewService(memRunner{store: store}, func(db.Querier) Store { return store }, events, engine,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, events
}

func bookAt(start localtime.Clock, key string) BookRequest {
	return BookRequest{
		BusinessID:     "b1",
		ServiceID:      "cut",
		Date:           monday,
		Start:          start,
		CustomerName:   "Ada",
		CustomerEmail:  "ada@example.com",
		IdempotencyKey: key,
	}
}

func TestBook_CreatesAppointmentAndEvent(t *testing.T) {
	store := newMemStore()
	svc, events := newTestService(store)

	out, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(10, 0), ""))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Confirmation.StartsAt != "2024-01-15T10:00:00Z" || out.Confirmation.EndsAt != "2024-01-15T10:30:00Z" {
		t.Fatalf("unexpected confirmation: %+v", out.Confirmation)
	}
	if out.Confirmation.Status != string(model.StatusConfirmed) {
		t.Fatalf("expected confirmed, got %s", out.Confirmation.Status)
	}
	if len(store.appointments) != 1 || store.appointments[0].BufferAfterMin != 15 {
		t.Fatalf("expected one appointment with buffer snapshot, got %+v", store.appointments)
	}
	if store.locks != 1 {
		t.Fatalf("expected business lock, got %d", store.locks)
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("expected booked event, got %+v", events.events)
	}
}

func TestBook_RejectsConflictWithBuffer(t *testing.T) {
	store := newMemStore()
	svc, events := newTestService(store)

	if _, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(10, 0), "")); err != nil {
		t.Fatalf("first Book: %v", err)
	}
	_, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(10, 30), ""))
	if !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable, got %v", err)
	}
	if len(store.appointments) != 1 || len(events.events) != 1 {
		t.Fatalf("rejected booking must not write, got %d appointments %d events", len(store.appointments), len(events.events))
	}
	if _, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(10, 45), "")); err != nil {
		t.Fatalf("10:45 should be free: %v", err)
	}
}

func TestBook_IdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc, events := newTestService(store)

	first, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "key-1"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	second, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "key-1"))
	if err != nil {
		t.Fatalf("replayed Book: %v", err)
	}
	if !second.Replayed || second.StatusCode != http.StatusCreated {
		t.Fatalf("expected replay, got %+v", second)
	}
	if second.Confirmation.AppointmentID != first.Confirmation.AppointmentID {
		t.Fatalf("replay returned %q, want %q", second.Confirmation.AppointmentID, first.Confirmation.AppointmentID)
	}
	if len(store.appointments) != 1 || len(events.events) != 1 {
		t.Fatalf("replay must not write again")
	}
}

func TestBook_CorruptStoredResponseFails(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)
	store.idempotency["key-3"] = storage.IdempotencyRecord{
		BusinessID:      "b1",
		IdempotencyKey:  "key-3",
		AppointmentID:   "appt-9",
		StatusCode:      http.StatusCreated,
		ResponsePayload: []byte("{not json"),
	}

	out, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "key-3"))
	if err == nil {
		t.Fatalf("expected decode error, got %+v", out)
	}
	if !strings.Contains(err.Error(), "decode stored response") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.appointments) != 0 {
		t.Fatalf("corrupt replay must not book, got %d appointments", len(store.appointments))
	}
}

func TestBook_IdempotentRejectionIsStored(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	if _, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "")); err != nil {
		t.Fatalf("Book: %v", err)
	}
	_, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "key-2"))
	if !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable, got %v", err)
	}
	out, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "key-2"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !out.IsReplayConflict() || out.StatusCode != http.StatusConflict {
		t.Fatalf("expected stored 409, got %+v", out)
	}
	var body map[string]string
	if err := json.Unmarshal(out.Payload, &body); err != nil || body["error"] == "" {
		t.Fatalf("expected error payload, got %s (%v)", out.Payload, err)
	}
}

func TestBook_DepositServiceStartsPending(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store)

	req := bookAt(localtime.ClockOf(13, 0), "")
	req.ServiceID = "color"
	out, err := svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Confirmation.Status != string(model.StatusPending) {
		t.Fatalf("expected pending, got %s", out.Confirmation.Status)
	}
}

func TestBook_Validation(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	cases := []func(*BookRequest){
		func(r *BookRequest) { r.BusinessID = "" },
		func(r *BookRequest) { r.Date = localtime.Date{} },
		func(r *BookRequest) { r.CustomerName = "  " },
		func(r *BookRequest) { r.CustomerEmail = ""; r.CustomerPhone = "" },
		func(r *BookRequest) { r.CustomerEmail = "nope" },
	}
	for i, mutate := range cases {
		req := bookAt(localtime.ClockOf(9, 0), "")
		mutate(&req)
		if _, err := svc.Book(context.Background(), req); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestBook_OutsideRules(t *testing.T) {
	svc, _ := newTestService(newMemStore())

	_, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(16, 45), ""))
	if !errors.Is(err, apperr.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable past closing, got %v", err)
	}
}

func TestChangeStatus_Transitions(t *testing.T) {
	store := newMemStore()
	svc, events := newTestService(store)

	out, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), ""))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	id := out.Confirmation.AppointmentID

	appt, err := svc.ChangeStatus(context.Background(), "b1", id, model.StatusConfirmed, "")
	if err != nil || appt.Status != model.StatusConfirmed {
		t.Fatalf("re-applying status should be a no-op, got %v (%v)", appt.Status, err)
	}
	if len(events.events) != 1 {
		t.Fatalf("no-op must not emit, got %d events", len(events.events))
	}

	appt, err = svc.Cancel(context.Background(), "b1", id, " customer request ")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if appt.Status != model.StatusCanceled || appt.CanceledAt == nil || appt.CancelReason != "customer request" {
		t.Fatalf("unexpected canceled appointment: %+v", appt)
	}
	if last := events.events[len(events.events)-1]; last.EventType != outbox.EventAppointmentCanceled {
		t.Fatalf("expected canceled event, got %s", last.EventType)
	}

	_, err = svc.ChangeStatus(context.Background(), "b1", id, model.StatusCompleted, "")
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from canceled, got %v", err)
	}

	if _, err := svc.Book(context.Background(), bookAt(localtime.ClockOf(9, 0), "")); err != nil {
		t.Fatalf("canceled slot should be bookable again: %v", err)
	}
}

func TestChangeStatus_NotFound(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	_, err := svc.ChangeStatus(context.Background(), "b1", "missing", model.StatusCompleted, "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

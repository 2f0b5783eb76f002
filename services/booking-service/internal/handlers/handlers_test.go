package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/booking"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/bookit-app/bookit/services/booking-service/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeEngine struct {
	lastQuery availability.SlotQuery
	lastCheck availability.SlotCheck
	result    availability.Result
	available bool
	err       error
}

func (f *fakeEngine) GetAvailableSlots(_ context.Context, q availability.SlotQuery) (availability.Result, error) {
	f.lastQuery = q
	return f.result, f.err
}

func (f *fakeEngine) IsSlotAvailable(_ context.Context, c availability.SlotCheck) (bool, error) {
	f.lastCheck = c
	return f.available, f.err
}

type fakeDirectory map[string]model.Business

func (f fakeDirectory) GetBusinessBySlug(_ context.Context, slug string) (model.Business, error) {
	b, ok := f[slug]
	if !ok {
		return model.Business{}, apperr.NotFound("business")
	}
	return b, nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSlots_BySlug(t *testing.T) {
	monday := localtime.NewDate(2024, time.January, 15)
	engine := &fakeEngine{result: availability.Result{
		Business: model.Business{ID: "b1", Timezone: "Europe/Berlin"},
		Service:  model.Service{ID: "cut", DurationMin: 30},
		Days: map[localtime.Date][]localtime.Clock{
			monday:            {localtime.ClockOf(9, 0), localtime.ClockOf(9, 15)},
			monday.AddDays(1): {},
		},
	}}
	h := NewAvailabilityHandler(engine, fakeDirectory{"salon": {ID: "b1"}}, discard)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?slug=salon&service_id=cut&from=2024-01-15&to=2024-01-16", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.lastQuery.BusinessID != "b1" || engine.lastQuery.StaffID != nil || engine.lastQuery.To != monday.AddDays(1) {
		t.Fatalf("unexpected query: %+v", engine.lastQuery)
	}
	body := decodeBody[struct {
		Timezone string `json:"timezone"`
		Days     []struct {
			Date  string   `json:"date"`
			Slots []string `json:"slots"`
		} `json:"days"`
	}](t, rec)
	if body.Timezone != "Europe/Berlin" || len(body.Days) != 2 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if body.Days[0].Date != "2024-01-15" || strings.Join(body.Days[0].Slots, ",") != "09:00,09:15" {
		t.Fatalf("unexpected first day: %+v", body.Days[0])
	}
	if body.Days[1].Slots == nil || len(body.Days[1].Slots) != 0 {
		t.Fatalf("expected empty slot list for second day, got %s", rec.Body.String())
	}
}

func TestSlots_Errors(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		err    error
		status int
	}{
		{"missing business", "/slots?service_id=cut&from=2024-01-15", nil, http.StatusBadRequest},
		{"unknown slug", "/slots?slug=nope&service_id=cut&from=2024-01-15", nil, http.StatusNotFound},
		{"bad date", "/slots?business_id=b1&service_id=cut&from=15.01.2024", nil, http.StatusBadRequest},
		{"bad timezone", "/slots?business_id=b1&service_id=cut&from=2024-01-15", fmt.Errorf("x: %w", apperr.ErrInvalidTimezone), http.StatusBadRequest},
		{"storage down", "/slots?business_id=b1&service_id=cut&from=2024-01-15", fmt.Errorf("x: %w", apperr.ErrStorageUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAvailabilityHandler(&fakeEngine{err: tc.err}, fakeDirectory{}, discard)
			rec := httptest.NewRecorder()
			h.Slots(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCheck(t *testing.T) {
	engine := &fakeEngine{available: true}
	h := NewAvailabilityHandler(engine, fakeDirectory{}, discard)

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/check?business_id=b1&service_id=cut&staff_id=s1&date=2024-01-15&time=10:30", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.lastCheck.Start != localtime.ClockOf(10, 30) || engine.lastCheck.StaffID == nil || *engine.lastCheck.StaffID != "s1" {
		t.Fatalf("unexpected check: %+v", engine.lastCheck)
	}
	body := decodeBody[checkResponse](t, rec)
	if !body.Available {
		t.Fatal("expected available")
	}

	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/check", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

type fakeBooker struct {
	lastBook   booking.BookRequest
	outcome    booking.Outcome
	lastStatus model.Status
	appt       model.Appointment
	err        error
}

func (f *fakeBooker) Book(_ context.Context, req booking.BookRequest) (booking.Outcome, error) {
	f.lastBook = req
	return f.outcome, f.err
}

func (f *fakeBooker) ChangeStatus(_ context.Context, _, _ string, next model.Status, _ string) (model.Appointment, error) {
	f.lastStatus = next
	appt := f.appt
	appt.Status = next
	return appt, f.err
}

type fakeLister struct {
	filter storage.AppointmentFilter
	appts  []model.Appointment
}

func (f *fakeLister) ListAppointments(_ context.Context, filter storage.AppointmentFilter) ([]model.Appointment, error) {
	f.filter = filter
	return f.appts, nil
}

const bookBody = `{"business_id":"b1","service_id":"cut","date":"2024-01-15","time":"10:00","customer_name":"Ada","customer_email":"ada@example.com"}`

func TestBook_Created(t *testing.T) {
	booker := &fakeBooker{outcome: booking.Outcome{Confirmation: booking.Confirmation{AppointmentID: "a1", Status: "confirmed"}}}
	h := NewBookingHandler(booker, &fakeLister{}, discard)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody))
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if booker.lastBook.Start != localtime.ClockOf(10, 0) || booker.lastBook.IdempotencyKey != "k1" || booker.lastBook.StaffID != nil {
		t.Fatalf("unexpected book request: %+v", booker.lastBook)
	}
	if body := decodeBody[booking.Confirmation](t, rec); body.AppointmentID != "a1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestBook_Replay(t *testing.T) {
	stored := []byte(`{"error":"slot unavailable"}`)
	booker := &fakeBooker{outcome: booking.Outcome{Replayed: true, StatusCode: http.StatusConflict, Payload: stored}}
	h := NewBookingHandler(booker, &fakeLister{}, discard)

	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/book", strings.NewReader(bookBody)))
	if rec.Code != http.StatusConflict || rec.Body.String() != string(stored) {
		t.Fatalf("expected stored 409 replay, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
}

func TestBook_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{"business_id":`, nil, http.StatusBadRequest},
		{"unknown field", `{"foo":1}`, nil, http.StatusBadRequest},
		{"bad time", strings.Replace(bookBody, "10:00", "25:00", 1), nil, http.StatusBadRequest},
		{"slot taken", bookBody, fmt.Errorf("booking.Book: %w", apperr.ErrSlotUnavailable), http.StatusConflict},
		{"internal", bookBody, fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewBookingHandler(&fakeBooker{err: tc.err}, &fakeLister{}, discard)
			rec := httptest.NewRecorder()
			h.Book(rec, httptest.NewRequest(http.MethodPost, "/book", strings.NewReader(tc.body)))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "boom") {
				t.Fatal("internal error text leaked")
			}
		})
	}
}

func TestStatusAndCancel(t *testing.T) {
	booker := &fakeBooker{appt: model.Appointment{ID: "a1", StartTime: time.Unix(0, 0), EndTime: time.Unix(1800, 0)}}
	h := NewBookingHandler(booker, &fakeLister{}, discard)

	req := httptest.NewRequest(http.MethodPost, "/cancel", strings.NewReader(`{"appointment_id":"a1","status":"completed"}`))
	req.Header.Set(BusinessHeader, "b1")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusOK || booker.lastStatus != model.StatusCanceled {
		t.Fatalf("expected cancel, got %d status %s", rec.Code, booker.lastStatus)
	}

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/status", strings.NewReader(`{"business_id":"b1","appointment_id":"a1","status":"noshow"}`)))
	if rec.Code != http.StatusOK || booker.lastStatus != model.StatusNoShow {
		t.Fatalf("expected noshow, got %d status %s", rec.Code, booker.lastStatus)
	}
	if body := decodeBody[appointmentItem](t, rec); body.Status != "noshow" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/status", strings.NewReader(`{"appointment_id":"a1","status":"archived"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	booker.err = fmt.Errorf("booking.ChangeStatus: %w", apperr.ErrInvalidTransition)
	rec = httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/status", strings.NewReader(`{"appointment_id":"a1","status":"pending"}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestList(t *testing.T) {
	staff := "s1"
	lister := &fakeLister{appts: []model.Appointment{{ID: "a1", StaffID: &staff, Status: model.StatusConfirmed}}}
	h := NewBookingHandler(&fakeBooker{}, lister, discard)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without business header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=confirmed&from=2024-01-01T00:00:00Z&limit=10", nil)
	req.Header.Set(BusinessHeader, "b1")
	rec = httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	f := lister.filter
	if f.BusinessID != "b1" || f.Status != model.StatusConfirmed || f.From == nil || f.To != nil || f.Limit != 10 {
		t.Fatalf("unexpected filter: %+v", f)
	}
	items := decodeBody[[]appointmentItem](t, rec)
	if len(items) != 1 || items[0].StaffID != "s1" {
		t.Fatalf("unexpected items: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=archived", nil)
	req.Header.Set(BusinessHeader, "b1")
	rec = httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

type fakeOwnerStore struct {
	rules       []model.AvailabilityRule
	replaced    []model.AvailabilityRule
	replacedFor *string
	exceptions  []model.AvailabilityException
	upserted    model.AvailabilityException
	deleteErr   error
	patch       storage.ServicePatch
}

func (f *fakeOwnerStore) ListRules(context.Context, string) ([]model.AvailabilityRule, error) {
	return f.rules, nil
}

func (f *fakeOwnerStore) ReplaceRules(_ context.Context, _ string, staffID *string, rules []model.AvailabilityRule) error {
	f.replacedFor = staffID
	f.replaced = rules
	return nil
}

func (f *fakeOwnerStore) ListExceptions(context.Context, string, localtime.Date, localtime.Date) ([]model.AvailabilityException, error) {
	return f.exceptions, nil
}

func (f *fakeOwnerStore) UpsertException(_ context.Context, exc model.AvailabilityException) (model.AvailabilityException, error) {
	exc.ID = "e1"
	f.upserted = exc
	return exc, nil
}

func (f *fakeOwnerStore) DeleteException(context.Context, string, string) error {
	return f.deleteErr
}

func (f *fakeOwnerStore) PatchService(_ context.Context, _, serviceID string, patch storage.ServicePatch) (model.Service, error) {
	f.patch = patch
	return model.Service{ID: serviceID, DurationMin: *patch.DurationMin, Active: true}, nil
}

func ownerRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(BusinessHeader, "b1")
	return req
}

func TestOwnerRules(t *testing.T) {
	staff := "s1"
	store := &fakeOwnerStore{rules: []model.AvailabilityRule{
		{ID: "r1", Weekday: time.Monday, Start: localtime.ClockOf(9, 0), End: localtime.ClockOf(17, 0)},
		{ID: "r2", StaffID: &staff, Weekday: time.Monday, Start: localtime.ClockOf(13, 0), End: localtime.ClockOf(18, 0)},
	}}
	h := NewOwnerHandler(store, discard)

	rec := httptest.NewRecorder()
	h.Rules(rec, ownerRequest(http.MethodPut, "/rules", `{"staff_id":"s1","rules":[{"weekday":1,"start":"13:00","end":"24:00"}]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.replacedFor == nil || *store.replacedFor != "s1" || len(store.replaced) != 1 || store.replaced[0].End != localtime.EndOfDay {
		t.Fatalf("unexpected replace: %v %+v", store.replacedFor, store.replaced)
	}

	rec = httptest.NewRecorder()
	h.Rules(rec, ownerRequest(http.MethodGet, "/rules?staff_id=s1", ""))
	items := decodeBody[[]ruleItem](t, rec)
	if len(items) != 1 || items[0].ID != "r2" {
		t.Fatalf("expected staff filtered rules, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Rules(rec, httptest.NewRequest(http.MethodGet, "/rules", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", rec.Code)
	}
}

func TestOwnerExceptions(t *testing.T) {
	store := &fakeOwnerStore{deleteErr: apperr.NotFound("exception")}
	h := NewOwnerHandler(store, discard)

	rec := httptest.NewRecorder()
	h.Exceptions(rec, ownerRequest(http.MethodPost, "/exceptions", `{"date":"2024-12-25","is_closed":true,"reason":"Christmas"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !store.upserted.IsClosed || store.upserted.Date != localtime.NewDate(2024, time.December, 25) || store.upserted.BusinessID != "b1" {
		t.Fatalf("unexpected upsert: %+v", store.upserted)
	}

	rec = httptest.NewRecorder()
	h.Exceptions(rec, ownerRequest(http.MethodDelete, "/exceptions?id=missing", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Exceptions(rec, ownerRequest(http.MethodGet, "/exceptions?from=2024-02-01&to=2024-01-01", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestOwnerServicesPatch(t *testing.T) {
	store := &fakeOwnerStore{}
	h := NewOwnerHandler(store, discard)

	rec := httptest.NewRecorder()
	h.Services(rec, ownerRequest(http.MethodPatch, "/services", `{"service_id":"cut","duration_min":45}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.patch.DurationMin == nil || *store.patch.DurationMin != 45 || store.patch.Name != nil {
		t.Fatalf("unexpected patch: %+v", store.patch)
	}
	if body := decodeBody[serviceItem](t, rec); body.ID != "cut" || body.DurationMin != 45 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Services(rec, ownerRequest(http.MethodPatch, "/services", `{"duration_min":45}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without service id, got %d", rec.Code)
	}
}

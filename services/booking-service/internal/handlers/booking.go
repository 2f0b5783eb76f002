package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookit-app/bookit/libs/httpx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/booking"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/bookit-app/bookit/services/booking-service/internal/storage"
)

type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (booking.Outcome, error)
	ChangeStatus(ctx context.Context, businessID, appointmentID string, next model.Status, reason string) (model.Appointment, error)
}

type AppointmentLister interface {
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
}

type BookingHandler struct {
	bookings     Booker
	appointments AppointmentLister
	logger       *slog.Logger
}

func NewBookingHandler(bookings Booker, appointments AppointmentLister, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, appointments: appointments, logger: logger}
}

type createBookingRequest struct {
	BusinessID    string          `json:"business_id"`
	ServiceID     string          `json:"service_id"`
	StaffID       string          `json:"staff_id"`
	Date          localtime.Date  `json:"date"`
	Time          localtime.Clock `json:"time"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
}

type statusRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id,omitempty"`
	CustomerName  string `json:"customer_name"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	Status        string `json:"status"`
	CanceledAt    string `json:"canceled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toAppointmentItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		ServiceID:     appt.ServiceID,
		CustomerName:  appt.CustomerName,
		StartsAt:      appt.StartTime.UTC().Format(time.RFC3339),
		EndsAt:        appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		CancelReason:  appt.CancelReason,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.StaffID != nil {
		item.StaffID = *appt.StaffID
	}
	if appt.CanceledAt != nil {
		item.CanceledAt = appt.CanceledAt.UTC().Format(time.RFC3339)
	}
	return item
}

// Book handles the public booking form. A repeated Idempotency-Key replays
// the first response byte for byte.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.bookings.Book(r.Context(), booking.BookRequest{
		BusinessID:     strings.TrimSpace(req.BusinessID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		StaffID:        optionalID(req.StaffID),
		Date:           req.Date,
		Start:          req.Time,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if out.Replayed {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(out.StatusCode)
		_, _ = w.Write(out.Payload)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out.Confirmation)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	businessID, err := ownerBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	filter := storage.AppointmentFilter{
		BusinessID: businessID,
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, r, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, bound.name+" must be RFC3339")
			return
		}
		*bound.dst = &t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.appointments.ListAppointments(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentItem(appt))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, model.StatusCanceled)
}

func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "")
}

// changeStatus serves both cancel and status routes. A fixed status ignores
// the status field of the body.
func (h *BookingHandler) changeStatus(w http.ResponseWriter, r *http.Request, fixed model.Status) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	businessID := strings.TrimSpace(r.Header.Get(BusinessHeader))
	if businessID == "" {
		businessID = strings.TrimSpace(req.BusinessID)
	}

	next := fixed
	if next == "" {
		status, ok := model.ParseStatus(strings.TrimSpace(req.Status))
		if !ok {
			writeAppError(w, r, h.logger, apperr.Invalid("unknown status %q", req.Status))
			return
		}
		next = status
	}

	appt, err := h.bookings.ChangeStatus(r.Context(), businessID, strings.TrimSpace(req.AppointmentID), next, req.Reason)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bookit-app/bookit/libs/httpx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
)

type SlotEngine interface {
	GetAvailableSlots(ctx context.Context, q availability.SlotQuery) (availability.Result, error)
	IsSlotAvailable(ctx context.Context, check availability.SlotCheck) (bool, error)
}

type BusinessDirectory interface {
	GetBusinessBySlug(ctx context.Context, slug string) (model.Business, error)
}

type AvailabilityHandler struct {
	engine    SlotEngine
	directory BusinessDirectory
	logger    *slog.Logger
}

func NewAvailabilityHandler(engine SlotEngine, directory BusinessDirectory, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, directory: directory, logger: logger}
}

type dayItem struct {
	Date  localtime.Date    `json:"date"`
	Slots []localtime.Clock `json:"slots"`
}

type slotsResponse struct {
	BusinessID  string    `json:"business_id"`
	ServiceID   string    `json:"service_id"`
	StaffID     string    `json:"staff_id,omitempty"`
	Timezone    string    `json:"timezone"`
	DurationMin int       `json:"duration_min"`
	Days        []dayItem `json:"days"`
}

type checkResponse struct {
	Available bool            `json:"available"`
	Date      localtime.Date  `json:"date"`
	Time      localtime.Clock `json:"time"`
}

// resolveBusiness accepts either business_id or the public slug.
func (h *AvailabilityHandler) resolveBusiness(r *http.Request) (string, error) {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("business_id")); id != "" {
		return id, nil
	}
	slug := strings.TrimSpace(q.Get("slug"))
	if slug == "" {
		return "", apperr.Invalid("business_id or slug is required")
	}
	b, err := h.directory.GetBusinessBySlug(r.Context(), slug)
	if err != nil {
		return "", err
	}
	return b.ID, nil
}

func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	businessID, err := h.resolveBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	from, err := parseDateParam("from", q.Get("from"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	to := from
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		if to, err = parseDateParam("to", raw); err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
	}

	query := availability.SlotQuery{
		BusinessID: businessID,
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		StaffID:    optionalID(q.Get("staff_id")),
		From:       from,
		To:         to,
	}
	res, err := h.engine.GetAvailableSlots(r.Context(), query)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	resp := slotsResponse{
		BusinessID:  businessID,
		ServiceID:   query.ServiceID,
		Timezone:    res.Business.Timezone,
		DurationMin: res.Service.DurationMin,
		Days:        make([]dayItem, 0, len(res.Days)),
	}
	if query.StaffID != nil {
		resp.StaffID = *query.StaffID
	}
	for _, d := range res.Dates() {
		slots := res.Days[d]
		if slots == nil {
			slots = []localtime.Clock{}
		}
		resp.Days = append(resp.Days, dayItem{Date: d, Slots: slots})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	businessID, err := h.resolveBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	date, err := parseDateParam("date", q.Get("date"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	start, err := parseClockParam("time", q.Get("time"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	ok, err := h.engine.IsSlotAvailable(r.Context(), availability.SlotCheck{
		BusinessID: businessID,
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		StaffID:    optionalID(q.Get("staff_id")),
		Date:       date,
		Start:      start,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: ok, Date: date, Time: start})
}

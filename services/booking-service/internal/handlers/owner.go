package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bookit-app/bookit/libs/httpx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/model"
	"github.com/bookit-app/bookit/services/booking-service/internal/storage"
)

type OwnerStore interface {
	ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error)
	ReplaceRules(ctx context.Context, businessID string, staffID *string, rules []model.AvailabilityRule) error
	ListExceptions(ctx context.Context, businessID string, from, to localtime.Date) ([]model.AvailabilityException, error)
	UpsertException(ctx context.Context, exc model.AvailabilityException) (model.AvailabilityException, error)
	DeleteException(ctx context.Context, businessID, exceptionID string) error
	PatchService(ctx context.Context, businessID, serviceID string, patch storage.ServicePatch) (model.Service, error)
}

// OwnerHandler serves the business-owner configuration routes. The business
// is always taken from the gateway header.
type OwnerHandler struct {
	store  OwnerStore
	logger *slog.Logger
	today  func() time.Time
}

func NewOwnerHandler(store OwnerStore, logger *slog.Logger) *OwnerHandler {
	return &OwnerHandler{store: store, logger: logger, today: time.Now}
}

type ruleItem struct {
	ID      string          `json:"id,omitempty"`
	StaffID *string         `json:"staff_id,omitempty"`
	Weekday int             `json:"weekday"`
	Start   localtime.Clock `json:"start"`
	End     localtime.Clock `json:"end"`
}

type replaceRulesRequest struct {
	StaffID string     `json:"staff_id"`
	Rules   []ruleItem `json:"rules"`
}

type exceptionItem struct {
	ID       string           `json:"id,omitempty"`
	StaffID  *string          `json:"staff_id,omitempty"`
	Date     localtime.Date   `json:"date"`
	IsClosed bool             `json:"is_closed"`
	Start    *localtime.Clock `json:"start,omitempty"`
	End      *localtime.Clock `json:"end,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

type patchServiceRequest struct {
	ServiceID string `json:"service_id"`
	storage.ServicePatch
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMin     int    `json:"duration_min"`
	BufferBeforeMin int    `json:"buffer_before_min"`
	BufferAfterMin  int    `json:"buffer_after_min"`
	MaxConcurrent   int    `json:"max_concurrent"`
	PriceCents      int64  `json:"price_cents"`
	DepositCents    int64  `json:"deposit_cents"`
	Active          bool   `json:"active"`
}

func toExceptionItem(e model.AvailabilityException) exceptionItem {
	return exceptionItem{
		ID:       e.ID,
		StaffID:  e.StaffID,
		Date:     e.Date,
		IsClosed: e.IsClosed,
		Start:    e.Start,
		End:      e.End,
		Reason:   e.Reason,
	}
}

// Rules lists (GET) or replaces (PUT) the weekly rules. PUT replaces one
// scope at a time: the business rules, or one staff member's rules.
func (h *OwnerHandler) Rules(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	businessID, err := ownerBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	if r.Method == http.MethodPut {
		var req replaceRulesRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		staffID := optionalID(req.StaffID)
		rules := make([]model.AvailabilityRule, 0, len(req.Rules))
		for _, item := range req.Rules {
			rules = append(rules, model.AvailabilityRule{
				BusinessID: businessID,
				StaffID:    staffID,
				Weekday:    time.Weekday(item.Weekday),
				Start:      item.Start,
				End:        item.End,
			})
		}
		if err := h.store.ReplaceRules(r.Context(), businessID, staffID, rules); err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
	}

	rules, err := h.store.ListRules(r.Context(), businessID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	staffFilter := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	items := make([]ruleItem, 0, len(rules))
	for _, rule := range rules {
		if staffFilter != "" && (rule.StaffID == nil || *rule.StaffID != staffFilter) {
			continue
		}
		items = append(items, ruleItem{
			ID:      rule.ID,
			StaffID: rule.StaffID,
			Weekday: int(rule.Weekday),
			Start:   rule.Start,
			End:     rule.End,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Exceptions lists a date range (GET), upserts one exception (POST) or
// deletes one by id (DELETE).
func (h *OwnerHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	businessID, err := ownerBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listExceptions(w, r, businessID)
	case http.MethodPost:
		var req exceptionItem
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		exc, err := h.store.UpsertException(r.Context(), model.AvailabilityException{
			BusinessID: businessID,
			StaffID:    req.StaffID,
			Date:       req.Date,
			IsClosed:   req.IsClosed,
			Start:      req.Start,
			End:        req.End,
			Reason:     strings.TrimSpace(req.Reason),
		})
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toExceptionItem(exc))
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			httpx.WriteError(w, r, http.StatusBadRequest, "id is required")
			return
		}
		if err := h.store.DeleteException(r.Context(), businessID, id); err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *OwnerHandler) listExceptions(w http.ResponseWriter, r *http.Request, businessID string) {
	q := r.URL.Query()
	from := localtime.DateOf(h.today().UTC())
	if raw := q.Get("from"); raw != "" {
		d, err := parseDateParam("from", raw)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		from = d
	}
	to := from.AddDays(90)
	if raw := q.Get("to"); raw != "" {
		d, err := parseDateParam("to", raw)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		to = d
	}
	if to.Before(from) {
		writeAppError(w, r, h.logger, apperr.Invalid("to is before from"))
		return
	}

	exceptions, err := h.store.ListExceptions(r.Context(), businessID, from, to)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	items := make([]exceptionItem, 0, len(exceptions))
	for _, e := range exceptions {
		items = append(items, toExceptionItem(e))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Services applies a partial update to one service.
func (h *OwnerHandler) Services(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPatch) {
		return
	}
	businessID, err := ownerBusiness(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	var req patchServiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID == "" {
		serviceID = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if serviceID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "service_id is required")
		return
	}

	svc, err := h.store.PatchService(r.Context(), businessID, serviceID, req.ServicePatch)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, serviceItem{
		ID:              svc.ID,
		Name:            svc.Name,
		DurationMin:     svc.DurationMin,
		BufferBeforeMin: svc.BufferBeforeMin,
		BufferAfterMin:  svc.BufferAfterMin,
		MaxConcurrent:   svc.MaxConcurrent,
		PriceCents:      svc.PriceCents,
		DepositCents:    svc.DepositCents,
		Active:          svc.Active,
	})
}

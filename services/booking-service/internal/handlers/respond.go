package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bookit-app/bookit/libs/httpx"
	"github.com/bookit-app/bookit/services/booking-service/internal/apperr"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
)

// BusinessHeader is set by the gateway on owner routes after it has
// authenticated the caller.
const BusinessHeader = "X-Business-Id"

func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	httpx.WriteError(w, r, status, apperr.PublicMessage(err))
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func ownerBusiness(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(BusinessHeader))
	if id == "" {
		return "", apperr.Invalid("%s header required", BusinessHeader)
	}
	return id, nil
}

func optionalID(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

func parseDateParam(name, raw string) (localtime.Date, error) {
	d, err := localtime.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return localtime.Date{}, apperr.Invalid("%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

func parseClockParam(name, raw string) (localtime.Clock, error) {
	c, err := localtime.ParseClock(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperr.Invalid("%s must be HH:mm", name)
	}
	return c, nil
}

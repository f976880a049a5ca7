package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/todo-api/internal/domain"
)

// localDateTimeLayout is accepted for from/to alongside RFC 3339 and is read as UTC.
const localDateTimeLayout = "2006-01-02T15:04:05"

// getPathID extracts a positive integer id from the URL path.
func getPathID(r *http.Request, paramName string) (int64, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return 0, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(paramName, "must be a positive integer", domain.ErrInvalidID)
	}
	return id, nil
}

// getUserIDQuery extracts the required user_id query parameter.
func getUserIDQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, domain.NewValidationError("user_id", "is required", domain.ErrValidation)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("user_id", "must be an integer", domain.ErrInvalidFormat)
	}
	return id, nil
}

// getTimeQuery parses an optional timestamp query parameter, returning def when absent.
func getTimeQuery(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(localDateTimeLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, domain.NewValidationError(name,
		"must be an RFC 3339 timestamp or "+localDateTimeLayout, domain.ErrInvalidFormat)
}

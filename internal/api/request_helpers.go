package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/goalq/internal/domain"
)

// getPathTaskID extracts the task id from the URL path.
func getPathTaskID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", domain.NewValidationError("id", "is required", domain.ErrInvalidTaskID)
	}
	return id, nil
}

// getQueryLimit parses the optional limit query parameter; absent means 0.
func getQueryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError("limit", "must be a non-negative integer", nil)
	}
	return n, nil
}

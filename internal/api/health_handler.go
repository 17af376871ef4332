package api

import (
	"net/http"

	"github.com/phrazzld/goalq/internal/api/shared"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	store      string
	dispatcher bool
	version    string
}

// NewHealthHandler describes the running process in health responses.
func NewHealthHandler(storeDriver string, dispatcherEnabled bool, version string) *HealthHandler {
	return &HealthHandler{store: storeDriver, dispatcher: dispatcherEnabled, version: version}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Store:      h.store,
		Dispatcher: h.dispatcher,
		Version:    h.version,
	})
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"subsvc/internal/jobstore"
)

// HealthHandler reports process liveness and Job Store reachability, the
// signal orchestrators use to decide whether this instance should receive
// traffic.
type HealthHandler struct {
	store jobstore.Store
}

func NewHealthHandler(store jobstore.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Routes sets up the liveness/readiness routes.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.GetHealth)
	r.Get("/ready", h.GetReady)
	return r
}

// GetHealth is an unconditional liveness probe.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// GetReady probes the Job Store with a bounded list call; a failure here
// means this instance cannot serve any job operation.
func (h *HealthHandler) GetReady(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.ListAll(r.Context(), 0, 1)
	if err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]interface{}{"ready": false, "error": err.Error()})
		return
	}
	render.JSON(w, r, map[string]interface{}{"ready": true})
}

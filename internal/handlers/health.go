package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is the slice of sql.DB the health check needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db      Pinger
	started time.Time
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now().UTC()}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Healthz answers 200 while the database responds to a ping, 503 otherwise.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	uptime := time.Since(h.started).Round(time.Second).String()
	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Uptime: uptime})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Uptime: uptime})
}

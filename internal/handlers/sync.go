package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/types"
)

// SyncHandler serves the mobile offline-sync endpoints.
type SyncHandler struct {
	reconciler *services.Reconciler
	activity   *services.ActivityLogger
}

func NewSyncHandler(reconciler *services.Reconciler, activity *services.ActivityLogger) *SyncHandler {
	return &SyncHandler{reconciler: reconciler, activity: activity}
}

// SyncRouter registers sync routes on the given router. All routes require
// authentication.
func SyncRouter(r chi.Router, handler *SyncHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/pull", handler.Pull)
	r.Get("/status", handler.Status)
}

// Pull returns the changes a client is missing since its checkpoint.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req types.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.reconciler.PullChanges(r.Context(), identity, req)
	if err != nil {
		if errors.Is(err, services.ErrUnknownEntity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to pull changes")
		return
	}

	h.activity.Record(r.Context(), identity.ID, types.ActionSyncPull, "device "+req.DeviceID, requestMeta(r))
	writeJSON(w, http.StatusOK, result)
}

// Status returns the cheap aggregate over the caller's sync queue.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := h.reconciler.Status(r.Context(), identity.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/types"
)

// ActivityHandler exposes the audit trail to administrators.
type ActivityHandler struct {
	activity *services.ActivityLogger
}

func NewActivityHandler(activity *services.ActivityLogger) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// ActivityRouter registers the audit-trail route. admin must gate on the
// ADMIN role.
func ActivityRouter(r chi.Router, handler *ActivityHandler, admin func(http.Handler) http.Handler) {
	r.With(admin).Get("/", handler.List)
}

// ActivityListResponse is the paginated audit-trail payload.
type ActivityListResponse struct {
	Items []types.ActivityLogEntry `json:"items"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
}

// List returns audit entries newest first, optionally filtered by user_id.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		userID, err = strconv.Atoi(raw)
		if err != nil || userID < 1 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
	}

	items, err := h.activity.List(r.Context(), userID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}

	writeJSON(w, http.StatusOK, ActivityListResponse{Items: items, Page: page, Limit: limit})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// EquipmentHandler provides HTTP handlers for fleet items.
type EquipmentHandler struct {
	equipment *services.EquipmentService
}

func NewEquipmentHandler(equipment *services.EquipmentService) *EquipmentHandler {
	return &EquipmentHandler{equipment: equipment}
}

// EquipmentRouter registers equipment routes.
func EquipmentRouter(r chi.Router, handler *EquipmentHandler, auth, manage func(http.Handler) http.Handler) {
	r.With(auth).Get("/", handler.List)
	r.With(manage).Post("/", handler.Create)
	r.Route("/{equipmentID}", func(r chi.Router) {
		r.With(auth).Get("/", handler.Get)
		r.With(manage).Put("/", handler.Update)
		r.With(manage).Delete("/", handler.Delete)
	})
}

// EquipmentListResponse is the paginated list response payload.
type EquipmentListResponse struct {
	Items []types.Equipment `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

type EquipmentUpsertRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	ProjectID int    `json:"project_id"`
}

func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.equipment.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list equipment")
		return
	}

	writeJSON(w, http.StatusOK, EquipmentListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "equipmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.equipment.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "equipment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch equipment")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseEquipmentRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.equipment.Create(r.Context(), identity, types.Equipment{
		Name:      req.Name,
		Kind:      req.Kind,
		Status:    req.Status,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create equipment")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "equipmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseEquipmentRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.equipment.Update(r.Context(), identity, types.Equipment{
		ID:        id,
		Name:      req.Name,
		Kind:      req.Kind,
		Status:    req.Status,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "equipment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update equipment")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "equipmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.equipment.Delete(r.Context(), identity, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "equipment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete equipment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseEquipmentRequest(r *http.Request) (EquipmentUpsertRequest, error) {
	var req EquipmentUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return EquipmentUpsertRequest{}, errors.New("invalid request")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return EquipmentUpsertRequest{}, errors.New("name is required")
	}
	if req.Status == "" {
		req.Status = types.EquipmentAvailable
	}
	return req, nil
}

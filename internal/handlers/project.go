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

// ProjectHandler provides HTTP handlers for projects.
type ProjectHandler struct {
	projects *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// ProjectRouter registers project routes. Reads need any authenticated
// identity; writes need a managing role.
func ProjectRouter(r chi.Router, handler *ProjectHandler, auth, manage func(http.Handler) http.Handler) {
	r.With(auth).Get("/", handler.List)
	r.With(manage).Post("/", handler.Create)
	r.Route("/{projectID}", func(r chi.Router) {
		r.With(auth).Get("/", handler.Get)
		r.With(manage).Put("/", handler.Update)
		r.With(manage).Delete("/", handler.Delete)
		r.With(manage).Post("/members/{userID}", handler.AddMember)
		r.With(manage).Delete("/members/{userID}", handler.RemoveMember)
	})
}

// ProjectListResponse is the paginated list response payload.
type ProjectListResponse struct {
	Items []types.Project `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

type ProjectUpsertRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	ManagerID int    `json:"manager_id"`
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.projects.List(r.Context(), identity, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, ProjectListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch project")
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseProjectRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.projects.Create(r.Context(), identity, types.Project{
		Name:      req.Name,
		Address:   req.Address,
		Status:    req.Status,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseProjectRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.projects.Update(r.Context(), identity, types.Project{
		ID:        id,
		Name:      req.Name,
		Address:   req.Address,
		Status:    req.Status,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update project")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projects.Delete(r.Context(), identity, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projects.AddMember(r.Context(), projectID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projects.RemoveMember(r.Context(), projectID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseProjectRequest(r *http.Request) (ProjectUpsertRequest, error) {
	var req ProjectUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ProjectUpsertRequest{}, errors.New("invalid request")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return ProjectUpsertRequest{}, errors.New("name is required")
	}
	if req.Status == "" {
		req.Status = types.ProjectPlanned
	}
	if req.ManagerID < 1 {
		return ProjectUpsertRequest{}, errors.New("manager_id is required")
	}
	return req, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

// TaskHandler provides HTTP handlers for tasks.
type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// TaskRouter registers task routes.
func TaskRouter(r chi.Router, handler *TaskHandler, auth, manage func(http.Handler) http.Handler) {
	r.With(auth).Get("/", handler.List)
	r.With(manage).Post("/", handler.Create)
	r.Route("/{taskID}", func(r chi.Router) {
		r.With(auth).Get("/", handler.Get)
		r.With(manage).Put("/", handler.Update)
		r.With(manage).Delete("/", handler.Delete)
	})
}

// TaskListResponse is the paginated list response payload.
type TaskListResponse struct {
	Items []types.Task `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

type TaskUpsertRequest struct {
	ProjectID  int        `json:"project_id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	AssigneeID int        `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date"`
}

// List returns tasks of one project; the project_id query parameter is
// required.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	projectID, err := parseQueryID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.tasks.ListByProject(r.Context(), projectID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, TaskListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.tasks.Create(r.Context(), identity, types.Task{
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		DueDate:    req.DueDate,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseTaskRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.tasks.Update(r.Context(), identity, types.Task{
		ID:         id,
		ProjectID:  req.ProjectID,
		Title:      req.Title,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		DueDate:    req.DueDate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tasks.Delete(r.Context(), identity, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseTaskRequest(r *http.Request) (TaskUpsertRequest, error) {
	var req TaskUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return TaskUpsertRequest{}, errors.New("invalid request")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return TaskUpsertRequest{}, errors.New("title is required")
	}
	if req.ProjectID < 1 {
		return TaskUpsertRequest{}, errors.New("project_id is required")
	}
	if req.Status == "" {
		req.Status = types.TaskOpen
	}
	return req, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/siteops-app/apiserver/internal/services"
	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
)

const (
	maxPhotoMemory = 16 << 20
	maxPhotoBytes  = 32 << 20
	formFieldPhoto = "photo"
)

// DeliveryHandler provides HTTP handlers for deliveries, including the
// proof-of-delivery photo upload.
type DeliveryHandler struct {
	deliveries *services.DeliveryService
}

func NewDeliveryHandler(deliveries *services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries}
}

// DeliveryRouter registers delivery routes.
func DeliveryRouter(r chi.Router, handler *DeliveryHandler, auth, manage func(http.Handler) http.Handler) {
	r.With(auth).Get("/", handler.List)
	r.With(manage).Post("/", handler.Create)
	r.Route("/{deliveryID}", func(r chi.Router) {
		r.With(auth).Get("/", handler.Get)
		r.With(manage).Put("/", handler.Update)
		r.With(manage).Delete("/", handler.Delete)
		r.With(manage).Post("/photo", handler.UploadPhoto)
		r.With(auth).Get("/photo", handler.GetPhoto)
	})
}

// DeliveryListResponse is the paginated list response payload.
type DeliveryListResponse struct {
	Items []types.Delivery `json:"items"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Total int              `json:"total"`
}

type DeliveryUpsertRequest struct {
	ProjectID int    `json:"project_id"`
	Supplier  string `json:"supplier"`
	Material  string `json:"material"`
	Status    string `json:"status"`
}

// List returns deliveries of one project; the project_id query parameter is
// required.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
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

	items, total, err := h.deliveries.ListByProject(r.Context(), projectID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	writeJSON(w, http.StatusOK, DeliveryListResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	delivery, err := h.deliveries.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch delivery")
		return
	}

	writeJSON(w, http.StatusOK, delivery)
}

func (h *DeliveryHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseDeliveryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.deliveries.Create(r.Context(), identity, types.Delivery{
		ProjectID: req.ProjectID,
		Supplier:  req.Supplier,
		Material:  req.Material,
		Status:    req.Status,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create delivery")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *DeliveryHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseDeliveryRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Photo key survives updates; it only changes through the upload route.
	current, err := h.deliveries.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch delivery")
		return
	}

	updated, err := h.deliveries.Update(r.Context(), identity, types.Delivery{
		ID:        id,
		ProjectID: req.ProjectID,
		Supplier:  req.Supplier,
		Material:  req.Material,
		Status:    req.Status,
		PhotoKey:  current.PhotoKey,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update delivery")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *DeliveryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deliveries.Delete(r.Context(), identity, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "delivery not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete delivery")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadPhoto attaches a proof-of-delivery photo via multipart upload.
func (h *DeliveryHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxPhotoMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File[formFieldPhoto]
	if len(files) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one photo file is required")
		return
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read photo")
		return
	}
	defer file.Close()

	if fileHeader.Size > maxPhotoBytes {
		writeError(w, http.StatusBadRequest, "photo too large")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	updated, err := h.deliveries.AttachPhoto(r.Context(), identity, id, file, fileHeader.Size, contentType)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "delivery not found")
		case errors.Is(err, services.ErrNoPhotoStorage):
			writeError(w, http.StatusServiceUnavailable, "photo storage not configured")
		default:
			writeError(w, http.StatusInternalServerError, "failed to upload photo")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// GetPhoto streams the delivery's stored photo.
func (h *DeliveryHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.deliveries.PhotoReader(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrNoPhoto):
			writeError(w, http.StatusNotFound, "photo not found")
		case errors.Is(err, services.ErrNoPhotoStorage):
			writeError(w, http.StatusServiceUnavailable, "photo storage not configured")
		default:
			writeError(w, http.StatusInternalServerError, "failed to fetch photo")
		}
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, reader)
}

func parseDeliveryRequest(r *http.Request) (DeliveryUpsertRequest, error) {
	var req DeliveryUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return DeliveryUpsertRequest{}, errors.New("invalid request")
	}
	req.Supplier = strings.TrimSpace(req.Supplier)
	if req.Supplier == "" {
		return DeliveryUpsertRequest{}, errors.New("supplier is required")
	}
	if req.ProjectID < 1 {
		return DeliveryUpsertRequest{}, errors.New("project_id is required")
	}
	if req.Status == "" {
		req.Status = types.DeliveryScheduled
	}
	return req, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gitpulse/gitpulse/internal/httputil"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/repository"
	"github.com/gitpulse/gitpulse/internal/service"
)

// Handler serves the events REST API.
type Handler struct {
	svc        *service.Service
	reconciler *service.Reconciler
	repo       repository.Repository
}

// NewHandler creates the API handler.
func NewHandler(svc *service.Service, reconciler *service.Reconciler, repo repository.Repository) *Handler {
	return &Handler{
		svc:        svc,
		reconciler: reconciler,
		repo:       repo,
	}
}

// Health handles GET /health: liveness plus a storage connectivity check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		httputil.WriteError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListEvents handles GET /api/v1/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.ListEventsRequest{
		Search: q.Get("search"),
		SortBy: q.Get("sort_by"),
		Desc:   httputil.ParseIntParam(q.Get("desc"), 0) == 1,
		Page:   httputil.ParseIntParam(q.Get("page"), 1),
		Limit:  httputil.ParseIntParam(q.Get("limit"), -1),
	}

	resp, err := h.svc.List(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// GetEvent handles GET /api/v1/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event ID required")
		return
	}

	e, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, e)
}

// CreateEvent handles POST /api/v1/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, e)
}

// UpdateEvent handles PATCH /api/v1/events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event ID required")
		return
	}

	var req models.UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.svc.Update(r.Context(), id, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, e)
}

// DeleteEvent handles DELETE /api/v1/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event ID required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RunReconcile handles POST /api/v1/events/task-generator/run: one
// synchronous reconciliation cycle.
func (h *Handler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	created, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		slog.Error("manual reconciliation failed", slog.String("error", err.Error()))
		httputil.WriteError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"created": created,
	})
}

// writeServiceError translates service and repository errors to HTTP
// status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, repository.ErrInvalidPage), errors.Is(err, repository.ErrUnknownField),
		errors.Is(err, service.ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrDuplicateEventID):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

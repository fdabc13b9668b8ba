package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/scheduler"
	"github.com/elizandromoreira/feed-control-sub000/internal/service"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// StoreHandler exposes the run, schedule and audit operations per store.
type StoreHandler struct {
	runner    *service.Runner
	scheduler *scheduler.Scheduler
	storage   storage.Port
	logger    interfaces.LoggerPort
}

func NewStoreHandler(runner *service.Runner, sched *scheduler.Scheduler, st storage.Port, logger interfaces.LoggerPort) *StoreHandler {
	return &StoreHandler{
		runner:    runner,
		scheduler: sched,
		storage:   st,
		logger:    logger,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: kind, Code: status, Message: message})
}

// ListStores returns every active store configuration.
func (h *StoreHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.storage.ListActiveStores(r.Context())
	if err != nil {
		h.logger.Error("failed to list stores", interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to list stores")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: stores})
}

// GetStore returns one store configuration, with the live running flag.
func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	store, err := h.storage.GetStore(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, models.ErrStoreNotFound) {
			renderError(w, r, http.StatusNotFound, "not_found", "store not found")
			return
		}
		h.logger.Error("failed to get store", interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to get store")
		return
	}
	store.IsRunning = h.runner.IsRunning(storeID)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: store})
}

// StartSync triggers a run for the store in the background. The optional
// phase query parameter restricts the run to "1" (supplier sync) or "2"
// (feed publishing); the default is a full run.
func (h *StoreHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	if _, err := h.storage.GetStore(r.Context(), storeID); err != nil {
		if errors.Is(err, models.ErrStoreNotFound) {
			renderError(w, r, http.StatusNotFound, "not_found", "store not found")
			return
		}
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to load store")
		return
	}

	if h.runner.IsRunning(storeID) {
		renderError(w, r, http.StatusConflict, "already_running", "a run is already in progress for this store")
		return
	}

	phase := r.URL.Query().Get("phase")
	go func() {
		ctx := context.Background()
		var err error
		switch phase {
		case "1":
			err = h.runner.RunPhase1(ctx, storeID)
		case "2":
			err = h.runner.RunPhase2(ctx, storeID)
		default:
			err = h.runner.RunStore(ctx, storeID)
		}
		if err != nil && !errors.Is(err, models.ErrAlreadyRunning) {
			h.logger.WithStore(storeID).Error("manual run failed",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{Success: true, Data: map[string]string{"store_id": storeID, "status": "started"}})
}

// CancelSync requests cooperative cancellation of the active run.
func (h *StoreHandler) CancelSync(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	if err := h.runner.Cancel(storeID); err != nil {
		renderError(w, r, http.StatusNotFound, "not_running", "no active run for this store")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: map[string]string{"store_id": storeID, "status": "cancelling"}})
}

// GetProgress returns the live snapshot of the store's active run.
func (h *StoreHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	snap, running := h.runner.Progress(storeID)
	if !running {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, response{Success: true, Data: models.SyncProgress{StoreID: storeID, Phase: models.PhaseIdle}})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: snap})
}

type scheduleRequest struct {
	IntervalHours int `json:"interval_hours"`
}

// ActivateSchedule arms the store's schedule with the given interval.
func (h *StoreHandler) ActivateSchedule(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntervalHours <= 0 {
		renderError(w, r, http.StatusBadRequest, "bad_request", "interval_hours must be a positive integer")
		return
	}

	if err := h.scheduler.Activate(r.Context(), storeID, req.IntervalHours); err != nil {
		if errors.Is(err, models.ErrStoreNotFound) {
			renderError(w, r, http.StatusNotFound, "not_found", "store not found")
			return
		}
		h.logger.Error("failed to activate schedule", interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to activate schedule")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: map[string]interface{}{
		"store_id":       storeID,
		"interval_hours": req.IntervalHours,
		"active":         true,
	}})
}

// CancelSchedule disarms the store's schedule.
func (h *StoreHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	if err := h.scheduler.Cancel(r.Context(), storeID); err != nil {
		if errors.Is(err, models.ErrStoreNotFound) {
			renderError(w, r, http.StatusNotFound, "not_found", "store not found")
			return
		}
		h.logger.Error("failed to cancel schedule", interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to cancel schedule")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: map[string]interface{}{
		"store_id": storeID,
		"active":   false,
	}})
}

// ListSubmissions returns the store's recent feed submission audit rows.
func (h *StoreHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			renderError(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	subs, err := h.storage.ListSubmissions(r.Context(), storeID, limit)
	if err != nil {
		h.logger.Error("failed to list submissions", interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "failed to list submissions")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{Success: true, Data: subs})
}

// Health reports liveness.
func (h *StoreHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

package taskqueue

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/internal/httpserver"
)

// Handler serves the per-session task queue API.
type Handler struct {
	queue  *Queue
	logger *slog.Logger
}

func NewHandler(queue *Queue, logger *slog.Logger) *Handler {
	return &Handler{queue: queue, logger: logger}
}

// Routes returns a chi.Router with all task queue routes mounted,
// nested under a session id.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{sessionID}/tasks", func(r chi.Router) {
		r.Post("/", h.handleEnqueue)
		r.Get("/", h.handleStats)
		r.Get("/history", h.handleHistory)
		r.Post("/dequeue", h.handleDequeue)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Post("/complete", h.handleComplete)
			r.Post("/fail", h.handleFail)
			r.Post("/cancel", h.handleCancel)
		})
	})
	return r
}

func (h *Handler) writeErr(w http.ResponseWriter, err error, action string) {
	status := http.StatusInternalServerError
	switch coreerrors.KindOf(err) {
	case coreerrors.KindValidation:
		status = http.StatusBadRequest
	case coreerrors.KindNotFound:
		status = http.StatusNotFound
	case coreerrors.KindConflict:
		status = http.StatusConflict
	case coreerrors.KindTransport:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(action, "error", err)
	}
	httpserver.RespondError(w, status, string(coreerrors.KindOf(err)), err.Error())
}

type enqueueRequest struct {
	AgentRole  string         `json:"agent_role" validate:"required"`
	Priority   int            `json:"priority"`
	Payload    map[string]any `json:"payload"`
	MaxRetries int            `json:"max_retries"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req enqueueRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.queue.Enqueue(r.Context(), sessionID, req.AgentRole, Priority(req.Priority), req.Payload, req.MaxRetries)
	if err != nil {
		h.writeErr(w, err, "enqueueing task")
		return
	}
	httpserver.Respond(w, http.StatusCreated, task)
}

type dequeueRequest struct {
	WorkerID string `json:"worker_id" validate:"required"`
}

func (h *Handler) handleDequeue(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req dequeueRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	task, ok, err := h.queue.Dequeue(r.Context(), sessionID, req.WorkerID)
	if err != nil {
		h.writeErr(w, err, "dequeueing task")
		return
	}
	if !ok {
		httpserver.Respond(w, http.StatusNoContent, nil)
		return
	}
	httpserver.Respond(w, http.StatusOK, task)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	taskID := chi.URLParam(r, "taskID")
	if err := h.queue.Complete(r.Context(), sessionID, taskID); err != nil {
		h.writeErr(w, err, "completing task")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"completed": true})
}

type failRequest struct {
	Error string `json:"error"`
	Retry bool   `json:"retry"`
}

func (h *Handler) handleFail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	taskID := chi.URLParam(r, "taskID")

	var req failRequest
	if r.ContentLength != 0 {
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
	}

	if err := h.queue.Fail(r.Context(), sessionID, taskID, req.Error, req.Retry); err != nil {
		h.writeErr(w, err, "failing task")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"failed": true})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	taskID := chi.URLParam(r, "taskID")
	if err := h.queue.Cancel(r.Context(), sessionID, taskID); err != nil {
		h.writeErr(w, err, "cancelling task")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// handleHistory returns a session's tasks newest-first, keyset
// (cursor) paginated so a client walking deep history never pages
// past a task that was enqueued mid-walk.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var before *time.Time
	if params.After != nil {
		at := params.After.CreatedAt
		before = &at
	}

	tasks, err := h.queue.History(r.Context(), sessionID, before, params.Limit+1)
	if err != nil {
		h.writeErr(w, err, "listing task history")
		return
	}

	page := httpserver.NewCursorPage(tasks, params.Limit, func(t Task) httpserver.Cursor {
		id, _ := uuid.Parse(t.ID)
		return httpserver.Cursor{CreatedAt: t.CreatedAt, ID: id}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	stats, err := h.queue.Stats(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, err, "getting queue stats")
		return
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

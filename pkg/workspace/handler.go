package workspace

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/internal/httpserver"
	"github.com/podexhq/coordinator/pkg/deviceauth"
	"github.com/podexhq/coordinator/pkg/dockerhost"
	"github.com/podexhq/coordinator/pkg/placement"
	"github.com/podexhq/coordinator/pkg/tier"
)

// Handler serves the workspace lifecycle API.
type Handler struct {
	orch   *Orchestrator
	logger *slog.Logger
}

func NewHandler(orch *Orchestrator, logger *slog.Logger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

// Routes returns a chi.Router with all workspace routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/stop", h.handleStop)
		r.Post("/start", h.handleStart)
		r.Delete("/", h.handleDelete)
		r.Post("/exec", h.handleExec)
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
	case coreerrors.KindCapacity:
		status = http.StatusServiceUnavailable
	case coreerrors.KindTransport:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(action, "error", err)
	}
	httpserver.RespondError(w, status, string(coreerrors.KindOf(err)), err.Error())
}

type createRequest struct {
	Tier           string            `json:"tier" validate:"required"`
	Image          string            `json:"image" validate:"required"`
	SessionID      string            `json:"session_id" validate:"required"`
	Env            map[string]string `json:"env"`
	RepositoryURLs []string          `json:"repository_urls"`
	PreserveData   bool              `json:"preserve_data"`
	Strategy       string            `json:"strategy"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := deviceauth.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.orch.Create(r.Context(), identity.UserID, req.SessionID, Config{
		Tier:           tier.Tier(req.Tier),
		Image:          req.Image,
		Env:            req.Env,
		RepositoryURLs: req.RepositoryURLs,
		PreserveData:   req.PreserveData,
	}, placement.Strategy(req.Strategy))
	if err != nil {
		h.writeErr(w, err, "creating workspace")
		return
	}

	httpserver.Respond(w, http.StatusCreated, result)
}

// handleList returns the caller's own workspaces, newest first,
// offset-paginated via ?page=&page_size=.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := deviceauth.IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	all, err := h.orch.ListByOwner(r.Context(), identity.UserID)
	if err != nil {
		h.writeErr(w, err, "listing workspaces")
		return
	}

	total := len(all)
	lo := params.Offset
	if lo > total {
		lo = total
	}
	hi := lo + params.PageSize
	if hi > total {
		hi = total
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(all[lo:hi], params, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid workspace id")
		return
	}
	ws, err := h.orch.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err, "getting workspace")
		return
	}
	httpserver.Respond(w, http.StatusOK, ws)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid workspace id")
		return
	}
	ws, err := h.orch.Stop(r.Context(), id)
	if err != nil {
		h.writeErr(w, err, "stopping workspace")
		return
	}
	httpserver.Respond(w, http.StatusOK, ws)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid workspace id")
		return
	}
	ws, err := h.orch.Start(r.Context(), id)
	if err != nil {
		h.writeErr(w, err, "starting workspace")
		return
	}
	httpserver.Respond(w, http.StatusOK, ws)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid workspace id")
		return
	}
	if err := h.orch.Delete(r.Context(), id); err != nil {
		h.writeErr(w, err, "deleting workspace")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type execRequest struct {
	Cmd []string `json:"cmd" validate:"required,min=1"`
}

func (h *Handler) handleExec(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid workspace id")
		return
	}

	var req execRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.orch.Exec(r.Context(), id, dockerhost.ExecRequest{Cmd: req.Cmd})
	if err != nil {
		h.writeErr(w, err, "exec in workspace")
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}


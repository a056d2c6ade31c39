package permission

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/podexhq/coordinator/internal/httpserver"
)

// Handler serves the tool-permission check and human-approval API.
type Handler struct {
	categorizer Categorizer
	broker      *Broker
	audit       *AuditWriter
	allowlist   *AllowlistStore
	logger      *slog.Logger
}

func NewHandler(categorizer Categorizer, broker *Broker, audit *AuditWriter, allowlist *AllowlistStore, logger *slog.Logger) *Handler {
	return &Handler{categorizer: categorizer, broker: broker, audit: audit, allowlist: allowlist, logger: logger}
}

// Routes returns a chi.Router with all permission routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.handleCheck)
	r.Post("/approvals/{id}/resolve", h.handleResolve)
	return r
}

type checkRequest struct {
	Mode      string   `json:"mode" validate:"required"`
	Tool      string   `json:"tool" validate:"required"`
	Command   string   `json:"command"`
	Allowlist []string `json:"allowlist"`
	SessionID string   `json:"session_id"`
	AgentID   string   `json:"agent_id"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	cat, ok := h.categorizer.Category(req.Tool)
	if !ok {
		cat = CategoryCommand
	}

	allowlist := req.Allowlist
	if h.allowlist != nil && req.SessionID != "" {
		stored, err := h.allowlist.List(r.Context(), req.SessionID)
		if err != nil {
			h.logger.Error("loading session allowlist", "error", err)
		} else {
			allowlist = append(allowlist, stored...)
		}
	}

	mode := ParseMode(req.Mode)
	result := Check(mode, cat, req.Command, allowlist)

	var approvalID string
	if result.RequiresApproval {
		id, _ := h.broker.Request(req.SessionID, req.Command)
		approvalID = id.String()
	}

	if h.audit != nil {
		outcome := "allowed"
		if !result.Allowed {
			outcome = "denied"
		} else if result.RequiresApproval {
			outcome = "pending_approval"
		}
		h.audit.Log(AuditEntry{
			SessionID:   req.SessionID,
			AgentID:     req.AgentID,
			Tool:        req.Tool,
			ArgsSummary: req.Command,
			ApprovalID:  approvalID,
			Outcome:     outcome,
		})
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"allowed":             result.Allowed,
		"error":               result.Error,
		"requires_approval":   result.RequiresApproval,
		"can_add_allowlist":   result.CanAddToAllowlist,
		"approval_id":         approvalID,
	})
}

type resolveRequest struct {
	Approved     bool `json:"approved"`
	AddAllowlist bool `json:"add_allowlist"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid approval id")
		return
	}

	var req resolveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, ok := h.broker.Resolve(id, Decision{Approved: req.Approved, AddAllowlist: req.AddAllowlist})
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "approval not found or already resolved")
		return
	}

	if req.Approved && req.AddAllowlist && h.allowlist != nil && info.SessionID != "" && info.Command != "" {
		if ContainsForbidden(info.Command) {
			h.logger.Warn("refusing to persist allowlist entry containing forbidden metacharacters", "session_id", info.SessionID)
		} else if err := h.allowlist.Add(r.Context(), info.SessionID, info.Command); err != nil {
			h.logger.Error("persisting allowlist entry", "error", err)
		}
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"resolved": true})
}

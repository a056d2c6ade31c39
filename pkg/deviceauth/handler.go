package deviceauth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/internal/httpserver"
)

// Handler serves the OAuth device authorization grant and the
// device-session/LocalPod management API.
type Handler struct {
	codes           *CodeStore
	tokens          *TokenManager
	blacklist       *Blacklist
	sessions        *SessionStore
	limiter         *PollLimiter
	pods            *LocalPodStore
	verificationURI string
	logger          *slog.Logger
}

func NewHandler(codes *CodeStore, tokens *TokenManager, blacklist *Blacklist, sessions *SessionStore, limiter *PollLimiter, pods *LocalPodStore, verificationURI string, logger *slog.Logger) *Handler {
	return &Handler{
		codes:           codes,
		tokens:          tokens,
		blacklist:       blacklist,
		sessions:        sessions,
		limiter:         limiter,
		pods:            pods,
		verificationURI: verificationURI,
		logger:          logger,
	}
}

// PublicRoutes returns the unauthenticated device-grant endpoints
// (mounted outside the authenticated /api/v1 sub-router, like the OAuth
// device flow itself: a device has no session yet when it requests one).
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/device/code", h.handleRequestCode)
	r.Post("/device/token", h.handlePollToken)
	return r
}

// Routes returns the authenticated session/pod management endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/device/authorize", h.handleAuthorize)
	r.Get("/sessions", h.handleListSessions)
	r.Delete("/sessions/{id}", h.handleRevokeSession)
	r.Post("/sessions/revoke-all", h.handleRevokeAllSessions)
	r.Post("/pods", h.handleEnrollPod)
	r.Delete("/pods/{id}", h.handleRevokePod)
	return r
}

type deviceInfoRequest struct {
	DeviceType string `json:"device_type"`
	DeviceName string `json:"device_name"`
}

func (h *Handler) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req deviceInfoRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	dc, err := h.codes.RequestCode(r.Context(), DeviceInfo{
		DeviceType: req.DeviceType,
		DeviceName: req.DeviceName,
		IP:         r.RemoteAddr,
		UA:         r.UserAgent(),
	})
	if err != nil {
		h.logger.Error("requesting device code", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue device code")
		return
	}

	httpserver.Respond(w, http.StatusOK, DeviceAuthResponse(dc, h.verificationURI))
}

type pollTokenRequest struct {
	DeviceCode string `json:"device_code"`
}

func (h *Handler) handlePollToken(w http.ResponseWriter, r *http.Request) {
	var req pollTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceCode == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "device_code is required")
		return
	}

	if err := h.limiter.Check(r.Context(), req.DeviceCode); err != nil {
		h.respondPollError(w, err)
		return
	}

	dc, err := h.codes.PollToken(r.Context(), req.DeviceCode)
	if err != nil {
		h.respondPollError(w, err)
		return
	}

	access, refresh, refreshJTI, err := h.tokens.IssuePair(dc.UserID)
	if err != nil {
		h.logger.Error("issuing token pair", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue tokens")
		return
	}

	if _, err := h.sessions.Create(r.Context(), dc.UserID, refreshJTI, DeviceInfo{
		DeviceType: dc.DeviceType,
		DeviceName: dc.DeviceName,
		IP:         r.RemoteAddr,
		UA:         r.UserAgent(),
	}); err != nil {
		h.logger.Error("creating device session", "error", err)
	}

	httpserver.Respond(w, http.StatusOK, TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
	})
}

func (h *Handler) respondPollError(w http.ResponseWriter, err error) {
	pe, ok := err.(*PollError)
	if !ok {
		h.logger.Error("polling device token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to poll device token")
		return
	}
	status := http.StatusBadRequest
	if pe.Code == ErrSlowDown || pe.Code == ErrAuthorizationPending {
		status = http.StatusOK
	}
	httpserver.RespondError(w, status, pe.Code, pe.Code)
}

type authorizeRequest struct {
	UserCode string `json:"user_code"`
	Approve  bool   `json:"approve"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req authorizeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.codes.AuthorizeByUserCode(r.Context(), req.UserCode, identity.UserID, req.Approve); err != nil {
		writeCoreError(w, h.logger, err, "authorizing device")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"approved": req.Approve})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	sessions, err := h.sessions.List(r.Context(), identity.UserID)
	if err != nil {
		writeCoreError(w, h.logger, err, "listing sessions")
		return
	}
	httpserver.Respond(w, http.StatusOK, sessions)
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.sessions.Revoke(r.Context(), id); err != nil {
		writeCoreError(w, h.logger, err, "revoking session")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type revokeAllRequest struct {
	KeepSessionID string `json:"keep_session_id"`
}

func (h *Handler) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req revokeAllRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	n, err := h.sessions.RevokeAllExcept(r.Context(), identity.UserID, req.KeepSessionID)
	if err != nil {
		writeCoreError(w, h.logger, err, "revoking sessions")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]int{"revoked": n})
}

type enrollPodRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleEnrollPod(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req enrollPodRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	pod, token, err := h.pods.Enroll(r.Context(), identity.UserID, req.Name)
	if err != nil {
		writeCoreError(w, h.logger, err, "enrolling pod")
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"pod":   pod,
		"token": token,
	})
}

func (h *Handler) handleRevokePod(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); !ok {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.pods.Revoke(r.Context(), id); err != nil {
		writeCoreError(w, h.logger, err, "revoking pod")
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// writeCoreError maps a coreerrors.Kind to an HTTP status, shared by
// every domain handler in this coordinator.
func writeCoreError(w http.ResponseWriter, logger *slog.Logger, err error, action string) {
	status := http.StatusInternalServerError
	switch coreerrors.KindOf(err) {
	case coreerrors.KindValidation:
		status = http.StatusBadRequest
	case coreerrors.KindAuth:
		status = http.StatusUnauthorized
	case coreerrors.KindNotFound:
		status = http.StatusNotFound
	case coreerrors.KindConflict:
		status = http.StatusConflict
	case coreerrors.KindCapacity:
		status = http.StatusServiceUnavailable
	case coreerrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case coreerrors.KindTransport:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		logger.Error(action, "error", err)
	}
	httpserver.RespondError(w, status, string(coreerrors.KindOf(err)), err.Error())
}

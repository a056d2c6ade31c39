package tier

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podexhq/coordinator/internal/httpserver"
)

// Handler serves the read-only hardware tier catalog.
type Handler struct {
	catalog *Catalog
	logger  *slog.Logger
}

func NewHandler(catalog *Catalog, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, logger: logger}
}

// Routes returns a chi.Router with all tier routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{tier}", h.handleGet)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t := Tier(chi.URLParam(r, "tier"))
	req, err := h.catalog.Requirements(t)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, req)
}

package tier

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandler_GetKnownTier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := NewCatalog(logger)
	h := NewHandler(catalog, logger)

	router := chi.NewRouter()
	router.Mount("/tiers", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/tiers/FREE", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d; body = %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandler_GetUnknownTier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := NewCatalog(logger)
	h := NewHandler(catalog, logger)

	router := chi.NewRouter()
	router.Mount("/tiers", h.Routes())

	r := httptest.NewRequest(http.MethodGet, "/tiers/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

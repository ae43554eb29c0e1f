package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
)

// ProfileViewer builds the merged public view of an identity.
type ProfileViewer interface {
	View(ctx context.Context, pubkey string) (*models.PublicProfile, error)
}

// PublicHandler serves GET /pub/{pubkey} as JSON.
//
// An identity without a social profile is a 404 that still carries whatever links were found.
type PublicHandler struct {
	viewer ProfileViewer
	logger *log.Logger
}

func NewPublicHandler(viewer ProfileViewer, logger *log.Logger) *PublicHandler {
	return &PublicHandler{viewer: viewer, logger: logger}
}

func (h *PublicHandler) Routes() []string {
	return []string{"GET /pub/{pubkey}"}
}

func (h *PublicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pubkey := shared.CleanPublicKey(r.PathValue("pubkey"))
	if pubkey == "" || strings.ContainsAny(pubkey, "/ ") {
		writeError(w, http.StatusBadRequest, "invalid public key")
		return
	}

	view, err := h.viewer.View(r.Context(), pubkey)
	if err == nil {
		writeJSON(w, http.StatusOK, view)
		return
	}

	// Index failures read as "not indexed yet"; there is no local fallback here.
	h.logger.Debug("public profile not found", "pubkey", pubkey, "error", err)
	if view == nil {
		view = &models.PublicProfile{PublicKey: pubkey, Links: models.LinkList{}}
	}
	writeJSON(w, http.StatusNotFound, view)
}

// HealthHandler answers GET /healthz.
type HealthHandler struct{}

func (HealthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewPublicRouter wires the public page, the health probe and the metrics endpoint behind logging,
// panic recovery and request counting.
func NewPublicRouter(viewer ProfileViewer, m *metrics.Metrics, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger), Instrument(m))
	router.Handler(NewPublicHandler(viewer, logger))
	router.Handler(HealthHandler{})
	router.Handle(http.MethodGet, "/metrics", m.Handler())
	return router
}

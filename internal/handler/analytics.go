package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/service"
)

type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *slog.Logger
}

func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// HandleTrack records a page view sent by the frontend tracker.
//
// HTTP: POST /analytics/track
// REQUEST BODY: {"path": "/courses/go", "referrer": "https://..."}
func (h *AnalyticsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var in service.TrackInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.analytics.Track(r.Context(), in, r.UserAgent()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// HandleStats returns the admin dashboard aggregates.
//
// HTTP: GET /analytics/stats (admin)
func (h *AnalyticsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Stats(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

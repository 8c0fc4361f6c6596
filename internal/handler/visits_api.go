package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sajpe/visitgate/internal/handler/dto"
	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/middleware"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/pipeline"
	"github.com/sajpe/visitgate/internal/redirect"
)

// VisitsAPIHandler runs the pipeline for browser pages and returns the
// outcome as JSON. Navigation is left to the page.
type VisitsAPIHandler struct {
	runner    Runner
	validator *requestValidator
	logger    *slog.Logger
}

// NewVisitsAPIHandler creates a VisitsAPIHandler.
func NewVisitsAPIHandler(runner Runner, logger *slog.Logger) *VisitsAPIHandler {
	return &VisitsAPIHandler{
		runner:    runner,
		validator: newRequestValidator(),
		logger:    logger.With("component", "handler.visits_api"),
	}
}

// Create handles POST /api/v1/visits.
func (h *VisitsAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.VisitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "latitude and longitude must be sent together")
		return
	}
	if err := middleware.ValidateReferralPath(req.Path, "", ""); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REFERRAL", err.Error())
		return
	}

	clientIP := network.ClientIP(r)
	m := redirect.NewMachine()
	out := h.runner.Run(r.Context(), pipeline.Input{
		Path:         req.Path,
		TypeOverride: req.Type,
		CodeOverride: req.Code,
		UserAgent:    r.UserAgent(),
		Signals:      identity.SignalsFromRequest(r),
		ClientIP:     clientIP,
		Geolocator:   geolocatorFromRequest(req),
	}, m)
	if out.Err != nil {
		h.logger.WarnContext(r.Context(), "visit degraded", "visit_id", out.Record.ID, "error", out.Err)
	}

	writeJSON(w, http.StatusOK, dto.VisitResponse{
		Record:   out.Record,
		Decision: out.Decision,
		States:   m.History(),
	})
}

func geolocatorFromRequest(req dto.VisitRequest) location.Geolocator {
	if req.Permission == "" {
		return nil
	}
	g := location.ClientGeolocator{State: location.ParsePermission(req.Permission)}
	if req.Latitude != nil && req.Longitude != nil {
		pos := location.Position{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if req.Accuracy != nil {
			pos.Accuracy = *req.Accuracy
		}
		g.Fix = &pos
	}
	return g
}

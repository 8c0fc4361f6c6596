package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/pipeline"
	"github.com/sajpe/visitgate/internal/redirect"
)

// Runner runs the visit pipeline.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, m *redirect.Machine) pipeline.Outcome
}

// VisitHandler serves referral links.
type VisitHandler struct {
	runner Runner
	race   redirect.VisibilityRace
	logger *slog.Logger
}

// NewVisitHandler creates a VisitHandler.
func NewVisitHandler(runner Runner, race redirect.VisibilityRace, logger *slog.Logger) *VisitHandler {
	return &VisitHandler{
		runner: runner,
		race:   race,
		logger: logger.With("component", "handler.visit"),
	}
}

// Visit handles GET / and GET /{type}/{action}/{code}.
//
// Web and store destinations get a 302. App destinations get the launcher
// page, which tries the deep link and falls back to the store in the browser.
// Incomplete referrals get the launcher in manual mode.
func (h *VisitHandler) Visit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientIP := network.ClientIP(r)

	m := redirect.NewMachine(h.observe(r))
	out := h.runner.Run(r.Context(), pipeline.Input{
		Path:         r.URL.Path,
		TypeOverride: q.Get("type"),
		CodeOverride: q.Get("code"),
		UserAgent:    r.UserAgent(),
		Signals:      identity.SignalsFromRequest(r),
		ClientIP:     clientIP,
		Geolocator:   geolocatorFromQuery(q.Get("geo"), q.Get("lat"), q.Get("lon"), q.Get("acc")),
	}, m)

	d := out.Decision
	if !d.Auto {
		_ = m.Transition(redirect.StateDone)
		h.launcher(w, r, out)
		return
	}

	_ = m.Transition(redirect.StateNavigating)
	if d.DeepLink() {
		_ = m.Transition(redirect.StateAwaitingConfirmation)
		h.launcher(w, r, out)
		return
	}

	_ = m.Transition(redirect.StateDone)
	w.Header().Set("Cache-Control", "private, max-age=0")
	http.Redirect(w, r, d.Primary, http.StatusFound)
}

func (h *VisitHandler) launcher(w http.ResponseWriter, r *http.Request, out pipeline.Outcome) {
	data := newLauncherData(out.Decision, out.Record.Device, h.race, newNonce())
	if err := renderLauncher(w, data); err != nil {
		h.logger.Error("render launcher failed",
			"visit_id", out.Record.ID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func (h *VisitHandler) observe(r *http.Request) redirect.Observer {
	ctx := r.Context()
	return func(from, to redirect.State) {
		h.logger.DebugContext(ctx, "visit state", "from", from, "to", to)
	}
}

// geolocatorFromQuery turns client hints into a Geolocator. Without a geo
// hint the GPS tier is skipped.
func geolocatorFromQuery(geo, lat, lon, acc string) location.Geolocator {
	if geo == "" {
		return nil
	}
	g := location.ClientGeolocator{State: location.ParsePermission(geo)}
	if pos, ok := parsePosition(lat, lon, acc); ok {
		g.Fix = &pos
	}
	return g
}

func parsePosition(lat, lon, acc string) (location.Position, bool) {
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil {
		return location.Position{}, false
	}
	pos := location.Position{Latitude: la, Longitude: lo}
	if a, err := strconv.ParseFloat(acc, 64); err == nil {
		pos.Accuracy = a
	}
	return pos, true
}

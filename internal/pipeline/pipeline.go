// Package pipeline runs one visit end to end: referral, device, identity,
// network, location, report, then the routing decision.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sajpe/visitgate/internal/device"
	"github.com/sajpe/visitgate/internal/identity"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/metrics"
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/network"
	"github.com/sajpe/visitgate/internal/redirect"
	"github.com/sajpe/visitgate/internal/referral"
)

// LocationResolver resolves a visitor location. It must not fail.
type LocationResolver interface {
	Resolve(ctx context.Context, geo location.Geolocator, ip string) model.LocationResult
}

// Reporter accepts a finished record without blocking.
type Reporter interface {
	Submit(record model.VisitRecord)
}

// Input is everything known about a visit when it arrives.
type Input struct {
	Path         string
	TypeOverride string
	CodeOverride string

	UserAgent string
	Signals   identity.Signals

	// ClientIP is the address observed by the transport, if any.
	ClientIP string

	// Geolocator reports device geolocation; nil skips the GPS tier.
	Geolocator location.Geolocator
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	Record   model.VisitRecord `json:"record"`
	Decision redirect.Decision `json:"decision"`

	// Err is set when the run hit an unexpected failure and the decision
	// was made on a best-effort basis.
	Err error `json:"-"`
}

// Orchestrator sequences the resolvers.
type Orchestrator struct {
	identity identity.Resolver
	network  network.Resolver
	location LocationResolver
	reporter Reporter
	router   *redirect.Router
	logger   *slog.Logger
	recorder metrics.Recorder

	now func() time.Time
}

// New creates an Orchestrator. network and reporter may be nil.
func New(
	identityResolver identity.Resolver,
	networkResolver network.Resolver,
	locationResolver LocationResolver,
	reporter Reporter,
	router *redirect.Router,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *Orchestrator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Orchestrator{
		identity: identityResolver,
		network:  networkResolver,
		location: locationResolver,
		reporter: reporter,
		router:   router,
		logger:   logger.With("component", "pipeline"),
		recorder: recorder,
		now:      time.Now,
	}
}

// Run executes the pipeline for in, moving m from Idle to Deciding.
// Navigation is left to the caller. Run always returns a usable decision.
func (o *Orchestrator) Run(ctx context.Context, in Input, m *redirect.Machine) (out Outcome) {
	start := o.now()
	record := model.VisitRecord{
		ID:        ulid.Make().String(),
		VisitedAt: start.UTC(),
	}
	classified := false

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("pipeline failed, routing best effort",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			out = o.bestEffort(m, record, classified)
			out.Err = fmt.Errorf("pipeline panic: %v", rec)
		}
		o.recorder.ObservePipelineDuration(o.now().Sub(start))
	}()

	if err := m.Transition(redirect.StateResolving); err != nil {
		panic(err)
	}

	record.Referral = referral.WithOverride(referral.Parse(in.Path), in.TypeOverride, in.CodeOverride)

	record.Device = device.Classify(in.UserAgent)
	classified = true

	ident, err := o.identity.Resolve(ctx, in.Signals)
	if err != nil {
		o.logger.Warn("identity resolution failed, continuing anonymously", "error", err)
		o.recorder.IncIdentityDegraded()
		ident = identity.Anonymous()
	}
	record.Identity = ident

	record.Network = model.NetworkInfo{IP: o.resolveIP(ctx, in.ClientIP)}

	record.Location = o.location.Resolve(ctx, in.Geolocator, locatableIP(record.Network.IP))

	if o.reporter != nil {
		o.reporter.Submit(record)
	}

	if err := m.Transition(redirect.StateDeciding); err != nil {
		panic(err)
	}
	decision := o.router.Route(record.Device.Category, record.Referral)
	o.observeDecision(decision)

	o.logger.Info("visit resolved",
		"visit_id", record.ID,
		"referral_type", record.Referral.Type,
		"category", record.Device.Category,
		"location_source", record.Location.Source,
		"decision", decision.Kind,
		"auto", decision.Auto,
	)

	return Outcome{Record: record, Decision: decision}
}

// resolveIP prefers a public transport address and falls back to the echo
// service, then to whatever the transport saw. The server wires no echo
// service: from there it would only ever report the gateway's egress IP.
func (o *Orchestrator) resolveIP(ctx context.Context, clientIP string) string {
	if network.IsPublic(clientIP) {
		return clientIP
	}
	if o.network != nil {
		if ip := o.network.ResolveIP(ctx); network.Known(ip) {
			return ip
		}
	}
	if clientIP != "" {
		return clientIP
	}
	return network.UnknownIP
}

// locatableIP hides private and loopback addresses from the IP tier.
func locatableIP(ip string) string {
	if network.IsPublic(ip) {
		return ip
	}
	return network.UnknownIP
}

// bestEffort routes with whatever was resolved before a failure. Without a
// device classification it assumes a handheld so the visitor still gets the
// app flow.
func (o *Orchestrator) bestEffort(m *redirect.Machine, record model.VisitRecord, classified bool) Outcome {
	if !classified {
		record.Device = model.DeviceProfile{
			Category: model.DeviceMobile,
			OS:       model.UnknownValue,
			Browser:  model.UnknownValue,
			Model:    model.UnknownValue,
		}
	}
	if record.Identity.StableID == "" {
		record.Identity = identity.Anonymous()
	}
	if record.Network.IP == "" {
		record.Network.IP = network.UnknownIP
	}
	if record.Location.Source == "" {
		record.Location = location.Placeholder()
	}

	switch m.Current() {
	case redirect.StateIdle:
		_ = m.Transition(redirect.StateResolving)
		_ = m.Transition(redirect.StateDeciding)
	case redirect.StateResolving:
		_ = m.Transition(redirect.StateDeciding)
	}

	decision := o.router.Route(record.Device.Category, record.Referral)
	o.observeDecision(decision)
	return Outcome{Record: record, Decision: decision}
}

func (o *Orchestrator) observeDecision(d redirect.Decision) {
	kind := string(d.Kind)
	if !d.Auto {
		kind = "manual"
	}
	o.recorder.IncRedirectDecision(kind)
	o.recorder.IncVisit(string(d.Category), string(d.Brand))
}

// Package location resolves where a visitor is.
//
// Resolution has two tiers. The GPS tier runs only when device geolocation
// permission was already granted; it never prompts. Otherwise, or when the
// fix or reverse geocode fails, an ordered chain of IP-geolocation providers
// is tried one at a time until one succeeds. When every tier fails the
// result is a placeholder with no coordinates.
package location

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/sajpe/visitgate/internal/model"
)

// NotAvailableAddress is the full address reported when nothing resolved.
const NotAvailableAddress = "Location Not Available"

// PermissionState mirrors the browser permission states for geolocation.
type PermissionState string

const (
	PermissionGranted     PermissionState = "granted"
	PermissionPrompt      PermissionState = "prompt"
	PermissionDenied      PermissionState = "denied"
	PermissionUnsupported PermissionState = "unsupported"
)

// ParsePermission maps free-form input to a PermissionState. Anything
// unrecognised is treated as prompt so that it never counts as granted.
func ParsePermission(s string) PermissionState {
	switch PermissionState(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	case PermissionUnsupported:
		return PermissionUnsupported
	default:
		return PermissionPrompt
	}
}

var (
	ErrPermissionNotGranted = errors.New("geolocation permission not granted")
	ErrNoFix                = errors.New("no position fix available")
	ErrInvalidFix           = errors.New("position fix out of range")
	ErrNoGeocoder           = errors.New("no reverse geocoder configured")
)

// Position is a device position fix. Accuracy is in meters.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

func (p Position) valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Geolocator is the device geolocation boundary. Permission must not prompt.
type Geolocator interface {
	Permission(ctx context.Context) (PermissionState, error)
	CurrentPosition(ctx context.Context) (Position, error)
}

// ClientGeolocator replays what a browser page reported about itself.
type ClientGeolocator struct {
	State PermissionState
	Fix   *Position
}

// Permission implements Geolocator.
func (c ClientGeolocator) Permission(context.Context) (PermissionState, error) {
	if c.State == "" {
		return PermissionPrompt, nil
	}
	return c.State, nil
}

// CurrentPosition implements Geolocator.
func (c ClientGeolocator) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if c.Fix == nil {
		return Position{}, ErrNoFix
	}
	return *c.Fix, nil
}

// Address is a reverse-geocoded address. Missing fields hold "Unknown".
type Address struct {
	City        string
	State       string
	Country     string
	PostalCode  string
	FullAddress string
}

// ReverseGeocoder converts a coordinate pair into an address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (Address, error)
}

// Provider is one IP-geolocation service in the fallback chain.
// Lookup with an empty ip asks about the caller's own address.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (model.LocationResult, error)
}

// Cache stores successful IP lookups.
type Cache interface {
	GetLocation(ctx context.Context, ip string) (model.LocationResult, error)
	SetLocation(ctx context.Context, ip string, loc model.LocationResult) error
}

// Placeholder is the result used when every tier failed.
func Placeholder() model.LocationResult {
	return model.LocationResult{
		City:        model.UnknownValue,
		State:       model.UnknownValue,
		Country:     model.UnknownValue,
		PostalCode:  model.UnknownValue,
		FullAddress: NotAvailableAddress,
		Accuracy:    model.AccuracyLow,
		Source:      model.SourceNone,
	}
}

// orUnknown returns the first non-blank value, or "Unknown".
func orUnknown(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return model.UnknownValue
}

// joinAddress builds a display address from its non-empty parts.
func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return model.UnknownValue
	}
	return strings.Join(kept, ", ")
}

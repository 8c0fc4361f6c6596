// Package redirect decides where a visitor goes and performs the navigation.
//
// Routing is a pure table lookup over device category and brand. Handheld
// visitors are sent to the brand's app scheme first; because no platform
// callback confirms that an app handled the link, the executor falls back to
// the store listing with a timing and visibility heuristic.
package redirect

import (
	"net/url"
	"strings"

	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/referral"
)

// Kind classifies the primary navigation of a decision.
type Kind string

const (
	KindWeb      Kind = "web"
	KindStore    Kind = "store"
	KindDeepLink Kind = "deeplink"
)

// TabletPolicy selects which branch tablets follow.
type TabletPolicy string

const (
	TabletApp TabletPolicy = "app"
	TabletWeb TabletPolicy = "web"
)

// Destinations holds every URL the router can produce.
type Destinations struct {
	MainPortal     string
	BusinessPortal string

	MainStore      string
	BusinessStore  string
	CommunityStore string

	MainScheme      string
	BusinessScheme  string
	CommunityScheme string
}

// DefaultDestinations returns the production URLs.
func DefaultDestinations() Destinations {
	return Destinations{
		MainPortal:      "https://sajpeweb.raavan.site/",
		BusinessPortal:  "https://sajpebusiness.raavan.site/",
		MainStore:       "https://play.google.com/store/apps/details?id=com.saj_pe",
		BusinessStore:   "https://play.google.com/store/apps/details?id=com.saj_pe.business",
		CommunityStore:  "https://play.google.com/store/apps/details?id=com.saj_pe.community",
		MainScheme:      "app",
		BusinessScheme:  "business",
		CommunityScheme: "community",
	}
}

// Decision is the outcome of a routing lookup.
type Decision struct {
	Brand    model.Brand          `json:"brand"`
	Category model.DeviceCategory `json:"category"`
	Kind     Kind                 `json:"kind"`
	Primary  string               `json:"primary"`
	Fallback string               `json:"fallback,omitempty"`

	// Auto is false when the referral lacks a type or code. Such visits
	// are not navigated automatically.
	Auto bool `json:"auto"`
}

// DeepLink reports whether the primary URL is an app scheme.
func (d Decision) DeepLink() bool {
	return d.Kind == KindDeepLink
}

// Router maps device category and referral to a Decision.
type Router struct {
	dest   Destinations
	tablet TabletPolicy
}

// NewRouter creates a Router. An unrecognised tablet policy means TabletApp.
func NewRouter(dest Destinations, tablet TabletPolicy) *Router {
	if tablet != TabletWeb {
		tablet = TabletApp
	}
	return &Router{dest: dest, tablet: tablet}
}

// Route returns the decision for category and ref. It has no side effects.
func (r *Router) Route(category model.DeviceCategory, ref model.ReferralInfo) Decision {
	brand := referral.BrandOf(ref.Type)
	d := Decision{Brand: brand, Category: category, Auto: ref.Complete()}

	app := r.usesApp(category)

	switch brand {
	case model.BrandCommunity:
		if app {
			d.Kind, d.Primary, d.Fallback = KindDeepLink, DeepLinkURL(r.dest.CommunityScheme, ref.Code), r.dest.CommunityStore
		} else {
			// The community brand has no web destination.
			d.Kind, d.Primary = KindStore, r.dest.CommunityStore
		}
	case model.BrandBusiness:
		if app {
			d.Kind, d.Primary, d.Fallback = KindDeepLink, DeepLinkURL(r.dest.BusinessScheme, ref.Code), r.dest.BusinessStore
		} else {
			d.Kind, d.Primary = KindWeb, withCode(r.dest.BusinessPortal, ref.Code)
		}
	default:
		if app {
			d.Kind, d.Primary, d.Fallback = KindDeepLink, DeepLinkURL(r.dest.MainScheme, ref.Code), r.dest.MainStore
		} else {
			d.Kind, d.Primary = KindWeb, withCode(r.dest.MainPortal, ref.Code)
		}
	}
	return d
}

func (r *Router) usesApp(category model.DeviceCategory) bool {
	switch category {
	case model.DeviceMobile:
		return true
	case model.DeviceTablet:
		return r.tablet == TabletApp
	default:
		return false
	}
}

// DeepLinkURL builds "{scheme}://home?code={code}". The query is omitted
// when code is empty.
func DeepLinkURL(scheme, code string) string {
	u := strings.TrimSuffix(scheme, "://") + "://home"
	if code != "" {
		u += "?code=" + url.QueryEscape(code)
	}
	return u
}

// withCode appends the referral code to a web destination.
func withCode(dest, code string) string {
	if code == "" {
		return dest
	}
	u, err := url.Parse(dest)
	if err != nil {
		return dest
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

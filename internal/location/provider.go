package location

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sajpe/visitgate/internal/model"
)

// Provider names accepted in configuration.
const (
	ProviderIPAPI    = "ipapi"    // ipapi.co
	ProviderIPWhois  = "ipwhois"  // ipwho.is
	ProviderIPAPICom = "ipapicom" // ip-api.com
)

// Default provider endpoints.
const (
	DefaultIPAPIURL    = "https://ipapi.co"
	DefaultIPWhoisURL  = "https://ipwho.is"
	DefaultIPAPIComURL = "http://ip-api.com"
)

var (
	ErrProviderFailed   = errors.New("provider reported failure")
	ErrMalformedPayload = errors.New("malformed provider payload")
	ErrUnknownProvider  = errors.New("unknown geolocation provider")
)

// ProviderError wraps a failed lookup with the provider's name.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProvider builds a named provider against baseURL, or its default
// endpoint when baseURL is empty.
func NewProvider(name, baseURL string, client *http.Client) (Provider, error) {
	switch name {
	case ProviderIPAPI:
		return &IPAPI{baseURL: pick(baseURL, DefaultIPAPIURL), client: client}, nil
	case ProviderIPWhois:
		return &IPWhois{baseURL: pick(baseURL, DefaultIPWhoisURL), client: client}, nil
	case ProviderIPAPICom:
		return &IPAPICom{baseURL: pick(baseURL, DefaultIPAPIComURL), client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

func pick(v, fallback string) string {
	if v == "" {
		v = fallback
	}
	return strings.TrimRight(v, "/")
}

// ipResult normalizes provider fields. Coordinates are required.
func ipResult(lat, lon *float64, city, region, country, postal string) (model.LocationResult, error) {
	if lat == nil || lon == nil {
		return model.LocationResult{}, fmt.Errorf("%w: missing coordinates", ErrMalformedPayload)
	}
	if !(Position{Latitude: *lat, Longitude: *lon}).valid() {
		return model.LocationResult{}, fmt.Errorf("%w: coordinates out of range", ErrMalformedPayload)
	}
	return model.LocationResult{
		Latitude:    lat,
		Longitude:   lon,
		City:        orUnknown(city),
		State:       orUnknown(region),
		Country:     orUnknown(country),
		PostalCode:  orUnknown(postal),
		FullAddress: joinAddress(city, region, country),
		Accuracy:    model.AccuracyMedium,
		Source:      model.SourceIP,
	}, nil
}

// IPAPI queries ipapi.co. Failures are flagged with "error": true.
type IPAPI struct {
	baseURL string
	client  *http.Client
}

func (p *IPAPI) Name() string { return ProviderIPAPI }

func (p *IPAPI) Lookup(ctx context.Context, ip string) (model.LocationResult, error) {
	endpoint := p.baseURL + "/json/"
	if ip != "" {
		endpoint = p.baseURL + "/" + url.PathEscape(ip) + "/json/"
	}

	var body struct {
		Error       bool     `json:"error"`
		Reason      string   `json:"reason"`
		City        string   `json:"city"`
		Region      string   `json:"region"`
		CountryName string   `json:"country_name"`
		Postal      string   `json:"postal"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
	}
	if err := getJSON(ctx, p.client, endpoint, nil, &body); err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	if body.Error {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %s", ErrProviderFailed, body.Reason)}
	}

	loc, err := ipResult(body.Latitude, body.Longitude, body.City, body.Region, body.CountryName, body.Postal)
	if err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	return loc, nil
}

// IPWhois queries ipwho.is. Failures are flagged with "success": false.
type IPWhois struct {
	baseURL string
	client  *http.Client
}

func (p *IPWhois) Name() string { return ProviderIPWhois }

func (p *IPWhois) Lookup(ctx context.Context, ip string) (model.LocationResult, error) {
	endpoint := p.baseURL + "/" + url.PathEscape(ip)

	var body struct {
		Success   *bool    `json:"success"`
		Message   string   `json:"message"`
		City      string   `json:"city"`
		Region    string   `json:"region"`
		Country   string   `json:"country"`
		Postal    string   `json:"postal"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := getJSON(ctx, p.client, endpoint, nil, &body); err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	if body.Success == nil || !*body.Success {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %s", ErrProviderFailed, body.Message)}
	}

	loc, err := ipResult(body.Latitude, body.Longitude, body.City, body.Region, body.Country, body.Postal)
	if err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	return loc, nil
}

// IPAPICom queries ip-api.com. Failures are flagged with "status": "fail".
type IPAPICom struct {
	baseURL string
	client  *http.Client
}

func (p *IPAPICom) Name() string { return ProviderIPAPICom }

func (p *IPAPICom) Lookup(ctx context.Context, ip string) (model.LocationResult, error) {
	endpoint := p.baseURL + "/json/" + url.PathEscape(ip) +
		"?fields=status,message,country,regionName,city,zip,lat,lon"

	var body struct {
		Status     string   `json:"status"`
		Message    string   `json:"message"`
		City       string   `json:"city"`
		RegionName string   `json:"regionName"`
		Country    string   `json:"country"`
		Zip        string   `json:"zip"`
		Lat        *float64 `json:"lat"`
		Lon        *float64 `json:"lon"`
	}
	if err := getJSON(ctx, p.client, endpoint, nil, &body); err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	if body.Status != "success" {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %s", ErrProviderFailed, body.Message)}
	}

	loc, err := ipResult(body.Lat, body.Lon, body.City, body.RegionName, body.Country, body.Zip)
	if err != nil {
		return model.LocationResult{}, &ProviderError{Provider: p.Name(), Err: err}
	}
	return loc, nil
}

package location

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultNominatimURL is the public OpenStreetMap reverse geocoder.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim reverse-geocodes through a Nominatim-compatible /reverse endpoint.
type Nominatim struct {
	baseURL string
	headers map[string]string
	client  *http.Client
}

// NewNominatim creates a geocoder. Nominatim's usage policy requires an
// identifying User-Agent; referer may be empty.
func NewNominatim(baseURL, userAgent, referer string, client *http.Client) *Nominatim {
	headers := map[string]string{"User-Agent": userAgent}
	if referer != "" {
		headers["Referer"] = referer
	}
	return &Nominatim{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  client,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Region   string `json:"region"`
		Country  string `json:"country"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Reverse implements ReverseGeocoder.
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (Address, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	var body nominatimResponse
	if err := getJSON(ctx, n.client, n.baseURL+"/reverse?"+q.Encode(), n.headers, &body); err != nil {
		return Address{}, fmt.Errorf("reverse geocode: %w", err)
	}
	if body.Error != "" {
		return Address{}, fmt.Errorf("reverse geocode: %s", body.Error)
	}

	a := body.Address
	return Address{
		City:        orUnknown(a.City, a.Town, a.Village),
		State:       orUnknown(a.State, a.Region),
		Country:     orUnknown(a.Country),
		PostalCode:  orUnknown(a.Postcode),
		FullAddress: orUnknown(body.DisplayName),
	}, nil
}

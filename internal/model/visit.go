// Package model defines domain entities for the application.
package model

import "time"

// UnknownValue is the placeholder for any field that could not be resolved.
const UnknownValue = "Unknown"

// Brand identifies which product a referral routes the visitor to.
type Brand string

const (
	BrandSajpe     Brand = "sajpe"
	BrandBusiness  Brand = "business"
	BrandCommunity Brand = "community"
)

// ReferralInfo is parsed once from the visit path. Empty fields mean absent.
type ReferralInfo struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// Complete reports whether both type and code are present.
// Auto-routing is disabled when either is missing.
func (r ReferralInfo) Complete() bool {
	return r.Type != "" && r.Code != ""
}

// DeviceCategory is the coarse device class used for routing.
type DeviceCategory string

const (
	DeviceMobile  DeviceCategory = "Mobile"
	DeviceTablet  DeviceCategory = "Tablet"
	DeviceDesktop DeviceCategory = "Desktop"
)

// DeviceProfile is derived from the user agent.
type DeviceProfile struct {
	Category DeviceCategory `json:"category"`
	OS       string         `json:"os"`
	Browser  string         `json:"browser"`
	Model    string         `json:"model"`
}

// VisitorIdentity holds the fingerprint-derived visitor token.
type VisitorIdentity struct {
	StableID  string `json:"stable_id"`
	Returning bool   `json:"returning,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// NetworkInfo holds the visitor's public address or UnknownValue.
type NetworkInfo struct {
	IP string `json:"ip"`
}

// LocationAccuracy grades how the location was obtained.
type LocationAccuracy string

const (
	AccuracyHigh   LocationAccuracy = "high"
	AccuracyMedium LocationAccuracy = "medium"
	AccuracyLow    LocationAccuracy = "low"
)

// LocationSource names the tier that produced a location.
type LocationSource string

const (
	SourceGPS  LocationSource = "gps"
	SourceIP   LocationSource = "ip"
	SourceNone LocationSource = "none"
)

// LocationResult is produced exactly once per visit.
type LocationResult struct {
	Latitude    *float64         `json:"latitude"`
	Longitude   *float64         `json:"longitude"`
	City        string           `json:"city"`
	State       string           `json:"state"`
	Country     string           `json:"country"`
	PostalCode  string           `json:"postal_code"`
	FullAddress string           `json:"full_address"`
	Accuracy    LocationAccuracy `json:"accuracy"`
	Source      LocationSource   `json:"source"`
}

// Consistent checks the coordinate invariants: gps and ip results carry both
// coordinates, none carries neither.
func (l LocationResult) Consistent() bool {
	hasCoords := l.Latitude != nil && l.Longitude != nil
	switch l.Source {
	case SourceGPS:
		return hasCoords && l.Accuracy == AccuracyHigh
	case SourceNone:
		return l.Latitude == nil && l.Longitude == nil && l.Accuracy == AccuracyLow
	default:
		return true
	}
}

// VisitRecord is the write-once aggregate for one visit.
type VisitRecord struct {
	ID        string          `json:"id"`
	Referral  ReferralInfo    `json:"referral"`
	Device    DeviceProfile   `json:"device"`
	Identity  VisitorIdentity `json:"identity"`
	Network   NetworkInfo     `json:"network"`
	Location  LocationResult  `json:"location"`
	VisitedAt time.Time       `json:"visited_at"`
}

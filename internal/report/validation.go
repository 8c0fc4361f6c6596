package report

import (
	"fmt"

	"github.com/sajpe/visitgate/internal/model"
)

const maxFieldLength = 512

// ValidatePayload checks a payload read back from the stream.
func ValidatePayload(p model.VisitPayload) error {
	if p.VisitID == "" {
		return fmt.Errorf("visit_id is required")
	}
	switch model.DeviceCategory(p.DeviceType) {
	case model.DeviceMobile, model.DeviceTablet, model.DeviceDesktop:
	default:
		return fmt.Errorf("device_type %q is not a known category", p.DeviceType)
	}
	if p.StableHardwareID == "" {
		return fmt.Errorf("stable_hardware_id is required")
	}
	switch model.LocationSource(p.LocationSource) {
	case model.SourceGPS, model.SourceIP, model.SourceNone:
	default:
		return fmt.Errorf("location_source %q is not a known source", p.LocationSource)
	}
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if p.VisitedAt.IsZero() {
		return fmt.Errorf("visited_at must be set")
	}

	for name, v := range map[string]string{
		"os":           p.OS,
		"browser":      p.Browser,
		"model":        p.Model,
		"ip_address":   p.IPAddress,
		"city":         p.City,
		"state":        p.State,
		"country":      p.Country,
		"postal_code":  p.PostalCode,
		"full_address": p.FullAddress,
	} {
		if len(v) > maxFieldLength {
			return fmt.Errorf("%s too long", name)
		}
	}
	for name, v := range map[string]*string{"referral_type": p.ReferralType, "referral_code": p.ReferralCode} {
		if v != nil && len(*v) > maxFieldLength {
			return fmt.Errorf("%s too long", name)
		}
	}
	return nil
}

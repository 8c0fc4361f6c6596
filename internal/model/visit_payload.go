package model

import "time"

// VisitPayload is the flattened VisitRecord sent to collectors and stored per row.
type VisitPayload struct {
	VisitID          string    `json:"visit_id"`
	ReferralType     *string   `json:"referral_type"`
	ReferralCode     *string   `json:"referral_code"`
	DeviceType       string    `json:"device_type"`
	OS               string    `json:"os"`
	Browser          string    `json:"browser"`
	Model            string    `json:"model"`
	StableHardwareID string    `json:"stable_hardware_id"`
	IPAddress        string    `json:"ip_address"`
	Latitude         *float64  `json:"latitude"`
	Longitude        *float64  `json:"longitude"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	Country          string    `json:"country"`
	PostalCode       string    `json:"postal_code"`
	FullAddress      string    `json:"full_address"`
	LocationAccuracy string    `json:"location_accuracy"`
	LocationSource   string    `json:"location_source"`
	VisitedAt        time.Time `json:"visited_at"`
}

// Flatten converts the record into its wire shape.
func (r VisitRecord) Flatten() VisitPayload {
	return VisitPayload{
		VisitID:          r.ID,
		ReferralType:     optional(r.Referral.Type),
		ReferralCode:     optional(r.Referral.Code),
		DeviceType:       string(r.Device.Category),
		OS:               r.Device.OS,
		Browser:          r.Device.Browser,
		Model:            r.Device.Model,
		StableHardwareID: r.Identity.StableID,
		IPAddress:        r.Network.IP,
		Latitude:         r.Location.Latitude,
		Longitude:        r.Location.Longitude,
		City:             r.Location.City,
		State:            r.Location.State,
		Country:          r.Location.Country,
		PostalCode:       r.Location.PostalCode,
		FullAddress:      r.Location.FullAddress,
		LocationAccuracy: string(r.Location.Accuracy),
		LocationSource:   string(r.Location.Source),
		VisitedAt:        r.VisitedAt,
	}
}

// Visit is a persisted visit row.
type Visit struct {
	VisitPayload
	EventID   string    `json:"event_id"` // Redis stream ID
	CreatedAt time.Time `json:"created_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Visit Collector Receiver Example
//
// A minimal stand-in for the referral-info endpoint, for local development.
//
// Usage:
//
//	go run main.go
//
// Then point visitgate at it:
//
//	COLLECTOR_URL=http://localhost:9000/portal/users/referral-info
//
// Set REJECT=1 to answer {"success": false} and exercise the rejection path.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
)

// VisitPayload is the flattened visit record visitgate posts.
type VisitPayload struct {
	VisitID          string   `json:"visit_id"`
	ReferralType     *string  `json:"referral_type"`
	ReferralCode     *string  `json:"referral_code"`
	DeviceType       string   `json:"device_type"`
	OS               string   `json:"os"`
	Browser          string   `json:"browser"`
	StableHardwareID string   `json:"stable_hardware_id"`
	IPAddress        string   `json:"ip_address"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	FullAddress      string   `json:"full_address"`
	LocationSource   string   `json:"location_source"`
}

func main() {
	reject := os.Getenv("REJECT") == "1"

	http.HandleFunc("/portal/users/referral-info", collectHandler(reject))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting collector receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func collectHandler(reject bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var p VisitPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&p); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("Received visit %s", p.VisitID)
		log.Printf("  Referral: %s/%s", deref(p.ReferralType), deref(p.ReferralCode))
		log.Printf("  Device:   %s, %s, %s", p.DeviceType, p.OS, p.Browser)
		log.Printf("  Visitor:  %s from %s", p.StableHardwareID, p.IPAddress)
		log.Printf("  Location: %s (%s)", p.FullAddress, p.LocationSource)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": !reject})
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

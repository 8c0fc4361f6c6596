package handler

import (
	"net/http"

	"github.com/sajpe/visitgate/internal/handler/dto"
	"github.com/sajpe/visitgate/internal/network"
)

// ClientIP handles GET /api/ip.
func ClientIP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, dto.IPResponse{IP: network.DisplayIP(r)})
}

// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/sajpe/visitgate/internal/model"
	"github.com/sajpe/visitgate/internal/redirect"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// VisitRequest is the body of POST /api/v1/visits. It is sent by a page
// that knows the real geolocation permission state. Latitude and Longitude
// come as a pair.
type VisitRequest struct {
	Path       string   `json:"path" validate:"omitempty,max=256"`
	Type       string   `json:"type" validate:"omitempty,segment"`
	Code       string   `json:"code" validate:"omitempty,segment"`
	Permission string   `json:"permission" validate:"omitempty,oneof=granted prompt denied unsupported"`
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
	Accuracy   *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

// VisitResponse is the pipeline outcome.
type VisitResponse struct {
	Record   model.VisitRecord `json:"record"`
	Decision redirect.Decision `json:"decision"`
	States   []redirect.State  `json:"states"`
}

// IPResponse is the body of GET /api/ip.
type IPResponse struct {
	IP string `json:"ip"`
}

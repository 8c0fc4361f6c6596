// Package referral extracts the routing context embedded in a visit path.
//
// Visit paths have the shape /{type}/{action}/{code}. The action segment is
// carried by the URL for humans and ignored here.
package referral

import (
	"strings"

	"github.com/sajpe/visitgate/internal/model"
)

// Segment positions within a visit path.
const (
	typeSegment = 0
	codeSegment = 2
)

// Parse splits path into non-empty segments and returns the type and code.
// Missing segments are left empty. Parse is pure.
func Parse(path string) model.ReferralInfo {
	segments := make([]string, 0, 3)
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	var info model.ReferralInfo
	if len(segments) > typeSegment {
		info.Type = segments[typeSegment]
	}
	if len(segments) > codeSegment {
		info.Code = segments[codeSegment]
	}
	return info
}

// WithOverride applies manual type/code values on top of a parsed referral.
// Non-empty override values win over the path.
func WithOverride(info model.ReferralInfo, typ, code string) model.ReferralInfo {
	if typ = strings.TrimSpace(typ); typ != "" {
		info.Type = typ
	}
	if code = strings.TrimSpace(code); code != "" {
		info.Code = code
	}
	return info
}

// BrandOf maps a referral type token to its brand.
// Unknown or absent tokens route as the main brand.
func BrandOf(typ string) model.Brand {
	switch strings.ToLower(typ) {
	case "c", "community":
		return model.BrandCommunity
	case "b", "business":
		return model.BrandBusiness
	default:
		return model.BrandSajpe
	}
}

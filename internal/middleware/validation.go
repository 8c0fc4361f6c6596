package middleware

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// MaxSegmentLength bounds each referral path segment and override value.
const MaxSegmentLength = 64

var (
	ErrSegmentTooLong = errors.New("path segment exceeds maximum length")
	ErrSegmentInvalid = errors.New("path segment contains invalid characters")
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateSegment checks one referral path segment or override value.
// Empty values are allowed.
func ValidateSegment(s string) error {
	if s == "" {
		return nil
	}
	if len(s) > MaxSegmentLength {
		return ErrSegmentTooLong
	}
	if !segmentPattern.MatchString(s) {
		return ErrSegmentInvalid
	}
	return nil
}

// ValidateReferralPath checks the path segments and the type/code overrides.
func ValidateReferralPath(path, typeOverride, codeOverride string) error {
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if err := ValidateSegment(seg); err != nil {
			return err
		}
	}
	if err := ValidateSegment(typeOverride); err != nil {
		return err
	}
	return ValidateSegment(codeOverride)
}

// ValidateReferral rejects visit requests whose referral input is malformed.
func ValidateReferral(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if err := ValidateReferralPath(r.URL.Path, q.Get("type"), q.Get("code")); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REFERRAL", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateSegment(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		wantErr error
	}{
		{"empty", "", nil},
		{"type token", "s", nil},
		{"numeric code", "105", nil},
		{"hyphen and underscore", "ref_code-9", nil},
		{"max length", strings.Repeat("a", MaxSegmentLength), nil},
		{"too long", strings.Repeat("a", MaxSegmentLength+1), ErrSegmentTooLong},
		{"dot", "a.b", ErrSegmentInvalid},
		{"script", "<script>", ErrSegmentInvalid},
		{"unicode", "cöde", ErrSegmentInvalid},
		{"space", "a b", ErrSegmentInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSegment(tt.segment); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSegment(%q) = %v, want %v", tt.segment, err, tt.wantErr)
			}
		})
	}
}

func TestValidateReferral(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"root", "/", http.StatusOK},
		{"full path", "/b/r/202", http.StatusOK},
		{"override", "/?type=b&code=202", http.StatusOK},
		{"bad segment", "/b/r/2%3C02", http.StatusBadRequest},
		{"bad override", "/s/r/1?code=%27or1%3D1", http.StatusBadRequest},
		{"long code", "/s/r/" + strings.Repeat("9", 65), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ValidateReferral(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusBadRequest && !strings.Contains(rec.Body.String(), `"code":"INVALID_REFERRAL"`) {
				t.Errorf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

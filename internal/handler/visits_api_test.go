package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/sajpe/visitgate/internal/handler/dto"
	"github.com/sajpe/visitgate/internal/location"
	"github.com/sajpe/visitgate/internal/redirect"
)

func postVisit(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUA)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVisitsAPI_Create(t *testing.T) {
	runner := newRoutingRunner()
	rec := postVisit(t, newTestRouter(runner),
		`{"path":"/b/r/202","permission":"granted","latitude":28.61,"longitude":77.2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.VisitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Decision.Kind != redirect.KindDeepLink || resp.Decision.Primary != "business://home?code=202" {
		t.Errorf("unexpected decision: %+v", resp.Decision)
	}
	if resp.Record.Referral.Code != "202" {
		t.Errorf("expected code 202, got %s", resp.Record.Referral.Code)
	}
	want := []redirect.State{redirect.StateIdle, redirect.StateResolving, redirect.StateDeciding}
	if !slices.Equal(resp.States, want) {
		t.Errorf("expected states %v, got %v", want, resp.States)
	}

	g, ok := runner.last(t).Geolocator.(location.ClientGeolocator)
	if !ok || g.Fix == nil || g.Fix.Latitude != 28.61 {
		t.Errorf("position not forwarded: %+v", runner.last(t).Geolocator)
	}
}

func TestVisitsAPI_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"path":`, "INVALID_JSON"},
		{"unknown field", `{"path":"/s/r/1","extra":true}`, "INVALID_JSON"},
		{"bad permission", `{"permission":"maybe"}`, "VALIDATION_ERROR"},
		{"bad type", `{"type":"s s"}`, "VALIDATION_ERROR"},
		{"latitude out of range", `{"latitude":91,"longitude":0}`, "VALIDATION_ERROR"},
		{"unpaired latitude", `{"latitude":10}`, "VALIDATION_ERROR"},
		{"bad path segment", `{"path":"/s/r/<script>"}`, "INVALID_REFERRAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postVisit(t, newTestRouter(newRoutingRunner()), tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if resp := decodeError(t, rec.Body); resp.Code != tt.code {
				t.Errorf("expected code %s, got %s (%s)", tt.code, resp.Code, resp.Error)
			}
		})
	}
}

func TestVisitsAPI_CORSPreflight(t *testing.T) {
	h := newTestRouter(newRoutingRunner())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/visits", nil)
	req.Header.Set("Origin", "https://sajpeweb.raavan.site")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://sajpeweb.raavan.site" {
		t.Errorf("expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/visits", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allowed origin, got %q", got)
	}
}

func TestFieldErrorMessages(t *testing.T) {
	v := newRequestValidator()

	err := v.Validate(dto.VisitRequest{Permission: "sometimes", Code: strings.Repeat("x", 3) + "!"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"permission must be one of", "code may only contain"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}

	if err := v.Validate(dto.VisitRequest{Path: "/s/r/1", Type: "s", Code: "1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

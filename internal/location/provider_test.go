package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajpe/visitgate/internal/model"
)

func jsonServer(t *testing.T, status int, body string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.URL.RequestURI()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		status   int
		body     string
		wantPath string
		wantCity string
		wantErr  error
	}{
		{
			name: "ipapi success", provider: ProviderIPAPI, status: 200,
			body:     `{"ip":"203.0.113.9","city":"Bengaluru","region":"Karnataka","country_name":"India","postal":"560001","latitude":12.97,"longitude":77.59}`,
			wantPath: "/203.0.113.9/json/", wantCity: "Bengaluru",
		},
		{
			name: "ipapi error flag", provider: ProviderIPAPI, status: 200,
			body:    `{"error":true,"reason":"RateLimited"}`,
			wantErr: ErrProviderFailed,
		},
		{
			name: "ipwhois success", provider: ProviderIPWhois, status: 200,
			body:     `{"success":true,"city":"Chennai","region":"Tamil Nadu","country":"India","postal":"600001","latitude":13.08,"longitude":80.27}`,
			wantPath: "/203.0.113.9", wantCity: "Chennai",
		},
		{
			name: "ipwhois success flag false", provider: ProviderIPWhois, status: 200,
			body:    `{"success":false,"message":"Reserved range"}`,
			wantErr: ErrProviderFailed,
		},
		{
			name: "ipwhois missing flag", provider: ProviderIPWhois, status: 200,
			body:    `{"city":"Chennai","latitude":13.08,"longitude":80.27}`,
			wantErr: ErrProviderFailed,
		},
		{
			name: "ipapicom success", provider: ProviderIPAPICom, status: 200,
			body:     `{"status":"success","city":"Kolkata","regionName":"West Bengal","country":"India","zip":"700001","lat":22.57,"lon":88.36}`,
			wantPath: "/json/203.0.113.9?fields=status,message,country,regionName,city,zip,lat,lon", wantCity: "Kolkata",
		},
		{
			name: "ipapicom fail status", provider: ProviderIPAPICom, status: 200,
			body:    `{"status":"fail","message":"private range"}`,
			wantErr: ErrProviderFailed,
		},
		{
			name: "malformed payload", provider: ProviderIPAPI, status: 200,
			body:    `<html>oops</html>`,
			wantErr: ErrMalformedPayload,
		},
		{
			name: "missing coordinates", provider: ProviderIPAPICom, status: 200,
			body:    `{"status":"success","city":"Kolkata"}`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			srv := jsonServer(t, tt.status, tt.body, &seen)
			p, err := NewProvider(tt.provider, srv.URL, srv.Client())
			require.NoError(t, err)

			loc, err := p.Lookup(context.Background(), "203.0.113.9")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var perr *ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.provider, perr.Provider)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, seen)
			assert.Equal(t, tt.wantCity, loc.City)
			assert.Equal(t, model.SourceIP, loc.Source)
			assert.Equal(t, model.AccuracyMedium, loc.Accuracy)
			assert.NotNil(t, loc.Latitude)
			assert.Contains(t, loc.FullAddress, "India")
		})
	}
}

func TestProviders_HTTPError(t *testing.T) {
	t.Parallel()

	for _, name := range []string{ProviderIPAPI, ProviderIPWhois, ProviderIPAPICom} {
		srv := jsonServer(t, http.StatusTooManyRequests, `{}`, nil)
		p, err := NewProvider(name, srv.URL, srv.Client())
		require.NoError(t, err)

		_, err = p.Lookup(context.Background(), "203.0.113.9")
		assert.Error(t, err, name)
	}
}

func TestProviders_SelfLookupPath(t *testing.T) {
	t.Parallel()

	var seen string
	srv := jsonServer(t, 200, `{"city":"Pune","latitude":18.52,"longitude":73.85}`, &seen)
	p, err := NewProvider(ProviderIPAPI, srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = p.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/json/", seen)
}

func TestNewProvider_Unknown(t *testing.T) {
	t.Parallel()

	_, err := NewProvider("maxmind", "", http.DefaultClient)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

// All three real providers answering garbage still yields the placeholder.
func TestResolver_MalformedProvidersEndToEnd(t *testing.T) {
	t.Parallel()

	var providers []Provider
	for _, name := range []string{ProviderIPAPI, ProviderIPWhois, ProviderIPAPICom} {
		srv := jsonServer(t, 200, `{"unexpected":`, nil)
		p, err := NewProvider(name, srv.URL, srv.Client())
		require.NoError(t, err)
		providers = append(providers, p)
	}

	r := NewResolver(Config{ProviderTimeout: time.Second}, nil, providers, testLogger(), nil)
	loc := r.FromIP(context.Background(), "203.0.113.9")

	assert.Equal(t, "Unknown", loc.City)
	assert.Equal(t, model.AccuracyLow, loc.Accuracy)
	assert.Equal(t, model.SourceNone, loc.Source)
}

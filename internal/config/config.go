// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/sajpe/visitgate/internal/network"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Storage. Without DATABASE_URL visits are not persisted; without
	// REDIS_URL there is no rate limit, cache, visitor store or stream.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting on visit entry points
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Peers allowed to set CF-Connecting-IP, X-Forwarded-For and X-Real-IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envDefault:"127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fc00::/7" envSeparator:","`

	// Comma-separated list of origins allowed to call /api/*.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`

	// Destinations
	MainPortalURL     string `env:"MAIN_PORTAL_URL" envDefault:"https://sajpeweb.raavan.site/"`
	BusinessPortalURL string `env:"BUSINESS_PORTAL_URL" envDefault:"https://sajpebusiness.raavan.site/"`
	MainStoreURL      string `env:"MAIN_STORE_URL" envDefault:"https://play.google.com/store/apps/details?id=com.saj_pe"`
	BusinessStoreURL  string `env:"BUSINESS_STORE_URL" envDefault:"https://play.google.com/store/apps/details?id=com.saj_pe.business"`
	CommunityStoreURL string `env:"COMMUNITY_STORE_URL" envDefault:"https://play.google.com/store/apps/details?id=com.saj_pe.community"`
	MainScheme        string `env:"MAIN_APP_SCHEME" envDefault:"app"`
	BusinessScheme    string `env:"BUSINESS_APP_SCHEME" envDefault:"business"`
	CommunityScheme   string `env:"COMMUNITY_APP_SCHEME" envDefault:"community"`

	// Redirection
	TabletPolicy         string        `env:"TABLET_POLICY" envDefault:"app"`
	FallbackDelay        time.Duration `env:"FALLBACK_DELAY" envDefault:"2500ms"`
	FallbackMaxElapsed   time.Duration `env:"FALLBACK_MAX_ELAPSED" envDefault:"3000ms"`
	DesktopRedirectDelay time.Duration `env:"DESKTOP_REDIRECT_DELAY" envDefault:"1500ms"`

	// Location
	GPSTimeout       time.Duration `env:"GPS_TIMEOUT" envDefault:"10s"`
	GeocodeTimeout   time.Duration `env:"GEOCODE_TIMEOUT" envDefault:"5s"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"4s"`
	GeoProviders     []string      `env:"GEO_PROVIDERS" envDefault:"ipapi,ipwhois,ipapicom" envSeparator:","`
	NominatimURL     string        `env:"NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderAgent    string        `env:"GEOCODER_USER_AGENT" envDefault:"SajPe-Scanner/1.0"`
	GeocoderReferer  string        `env:"GEOCODER_REFERER" envDefault:"https://sajpeweb.raavan.site"`
	LocationCacheTTL time.Duration `env:"LOCATION_CACHE_TTL" envDefault:"6h"`

	// Network
	IPEchoURL     string        `env:"IP_ECHO_URL" envDefault:"https://api.ipify.org?format=json"`
	IPEchoTimeout time.Duration `env:"IP_ECHO_TIMEOUT" envDefault:"3s"`

	// Identity
	IdentitySalt    string        `env:"IDENTITY_SALT" envDefault:"visitgate-dev-salt"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"2s"`
	IdentityTTL     time.Duration `env:"IDENTITY_TTL" envDefault:"720h"`

	// Reporting
	CollectorURL  string        `env:"COLLECTOR_URL" envDefault:"https://sajpebusiness.raavan.site/portal/users/referral-info"`
	ReportTimeout time.Duration `env:"REPORT_TIMEOUT" envDefault:"5s"`
	WorkerEnabled bool          `env:"WORKER_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

var knownProviders = map[string]bool{"ipapi": true, "ipwhois": true, "ipapicom": true}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	switch c.TabletPolicy {
	case "app", "web":
	default:
		errs = append(errs, fmt.Errorf("TABLET_POLICY must be app or web, got %q", c.TabletPolicy))
	}

	for _, p := range c.GeoProviders {
		if !knownProviders[strings.TrimSpace(p)] {
			errs = append(errs, fmt.Errorf("GEO_PROVIDERS: unknown provider %q", p))
		}
	}

	for name, raw := range map[string]string{
		"MAIN_PORTAL_URL":     c.MainPortalURL,
		"BUSINESS_PORTAL_URL": c.BusinessPortalURL,
		"MAIN_STORE_URL":      c.MainStoreURL,
		"BUSINESS_STORE_URL":  c.BusinessStoreURL,
		"COMMUNITY_STORE_URL": c.CommunityStoreURL,
		"NOMINATIM_URL":       c.NominatimURL,
		"COLLECTOR_URL":       c.CollectorURL,
	} {
		if raw == "" && name == "COLLECTOR_URL" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw))
		}
	}

	if _, err := network.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	if c.FallbackDelay >= c.FallbackMaxElapsed {
		errs = append(errs, fmt.Errorf("FALLBACK_DELAY (%s) must be below FALLBACK_MAX_ELAPSED (%s)", c.FallbackDelay, c.FallbackMaxElapsed))
	}
	if c.IdentitySalt == "" {
		errs = append(errs, errors.New("IDENTITY_SALT must not be empty"))
	}
	if c.IsProduction() && c.IdentitySalt == "visitgate-dev-salt" {
		errs = append(errs, errors.New("IDENTITY_SALT must be set in production"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

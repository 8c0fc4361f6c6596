// Package network resolves the visitor's public IP address.
package network

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sajpe/visitgate/internal/model"
)

// UnknownIP is returned when the address cannot be determined.
const UnknownIP = model.UnknownValue

// maxEchoBody caps how much of an echo response is read.
const maxEchoBody = 4 << 10

// Resolver returns the public IP or UnknownIP. It never returns an error.
type Resolver interface {
	ResolveIP(ctx context.Context) string
}

// EchoClient asks an IP-echo service that answers {"ip": "..."}.
type EchoClient struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewEchoClient creates an EchoClient for url.
func NewEchoClient(url string, client *http.Client, timeout time.Duration, logger *slog.Logger) *EchoClient {
	return &EchoClient{
		url:     url,
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "ip_echo"),
	}
}

type echoResponse struct {
	IP string `json:"ip"`
}

// ResolveIP implements Resolver.
func (c *EchoClient) ResolveIP(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.logger.Warn("build echo request failed", "error", err)
		return UnknownIP
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("ip echo request failed", "error", err)
		return UnknownIP
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("ip echo returned error status", "status", resp.StatusCode)
		return UnknownIP
	}

	var body echoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEchoBody)).Decode(&body); err != nil {
		c.logger.Warn("ip echo body malformed", "error", err)
		return UnknownIP
	}

	ip := strings.TrimSpace(body.IP)
	if net.ParseIP(ip) == nil {
		c.logger.Warn("ip echo returned invalid address", "ip", ip)
		return UnknownIP
	}
	return ip
}

// Static is a Resolver that always returns the same address.
type Static string

// ResolveIP implements Resolver.
func (s Static) ResolveIP(context.Context) string {
	if s == "" {
		return UnknownIP
	}
	return string(s)
}

// Known reports whether ip is a real address rather than the sentinel.
func Known(ip string) bool {
	return ip != "" && ip != UnknownIP
}

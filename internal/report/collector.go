package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sajpe/visitgate/internal/model"
)

// DefaultCollectorURL is the production referral-info endpoint.
const DefaultCollectorURL = "https://sajpebusiness.raavan.site/portal/users/referral-info"

// ErrCollectorRejected is returned when the collector answers success:false.
var ErrCollectorRejected = errors.New("collector rejected visit")

const maxCollectorResponse = 64 << 10

type collectorResponse struct {
	Success *bool `json:"success"`
}

// Collector posts visits to the external collector as JSON.
type Collector struct {
	url    string
	client *http.Client
}

// NewCollector creates a Collector for url.
func NewCollector(url string, client *http.Client) *Collector {
	return &Collector{url: url, client: client}
}

// Name implements Sink.
func (c *Collector) Name() string { return "collector" }

// Send implements Sink. A 2xx answer without a success field is accepted.
func (c *Collector) Send(ctx context.Context, payload model.VisitPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post visit: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxCollectorResponse))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	var out collectorResponse
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &out) == nil && out.Success != nil && !*out.Success {
		return ErrCollectorRejected
	}
	return nil
}

package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/metrics"
)

func init() {
	Register("vitacost", func(endpoint string, client *http.Client) Connector {
		return &VitacostConnector{endpoint: strings.TrimRight(endpoint, "/"), client: client}
	})
}

// VitacostConnector reads product state from the Vitacost proxy API.
// Unlike the Best Buy proxy it wraps the payload and signals stock with
// a boolean, not an availability string.
type VitacostConnector struct {
	endpoint string
	client   *http.Client
}

type vitacostResponse struct {
	Found   bool `json:"found"`
	Product struct {
		Price   float64 `json:"price"`
		InStock bool    `json:"in_stock"`
		Stock   int     `json:"stock"`
		Brand   string  `json:"brand"`
	} `json:"product"`
}

func (c *VitacostConnector) Name() string { return "vitacost" }

func (c *VitacostConnector) Fetch(ctx context.Context, sku string) (*ProductData, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/items/"+sku, nil)
	if err != nil {
		return nil, fmt.Errorf("vitacost: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("vitacost: request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.SupplierRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.SupplierRequests.WithLabelValues(c.Name(), "not_found").Inc()
		return nil, fmt.Errorf("vitacost: sku %s: %w", sku, models.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("vitacost: unexpected status %d for sku %s", resp.StatusCode, sku)
	}

	var body vitacostResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("vitacost: malformed response for sku %s: %w", sku, err)
	}

	if !body.Found {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "not_found").Inc()
		return nil, fmt.Errorf("vitacost: sku %s not found: %w", sku, models.ErrNotFound)
	}

	metrics.SupplierRequests.WithLabelValues(c.Name(), "ok").Inc()

	return &ProductData{
		Price:     body.Product.Price,
		Stock:     body.Product.Stock,
		Available: body.Product.InStock,
		Brand:     body.Product.Brand,
	}, nil
}

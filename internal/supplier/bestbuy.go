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
	Register("bestbuy", func(endpoint string, client *http.Client) Connector {
		return &BestBuyConnector{endpoint: strings.TrimRight(endpoint, "/"), client: client}
	})
}

// BestBuyConnector reads product state from the Best Buy proxy API.
type BestBuyConnector struct {
	endpoint string
	client   *http.Client
}

type bestBuyResponse struct {
	SKU          string  `json:"sku"`
	Price        float64 `json:"price"`
	Availability string  `json:"availability"`
	Quantity     int     `json:"quantity"`
	Brand        string  `json:"brand"`
	LeadTime     int     `json:"leadTime"`
}

func (c *BestBuyConnector) Name() string { return "bestbuy" }

func (c *BestBuyConnector) Fetch(ctx context.Context, sku string) (*ProductData, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/product/"+sku, nil)
	if err != nil {
		return nil, fmt.Errorf("bestbuy: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("bestbuy: request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.SupplierRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.SupplierRequests.WithLabelValues(c.Name(), "not_found").Inc()
		return nil, fmt.Errorf("bestbuy: sku %s: %w", sku, models.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("bestbuy: unexpected status %d for sku %s", resp.StatusCode, sku)
	}

	var body bestBuyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("bestbuy: malformed response for sku %s: %w", sku, err)
	}

	// The proxy reports delisted items with an empty availability field
	// instead of a 404.
	if body.Availability == "" {
		metrics.SupplierRequests.WithLabelValues(c.Name(), "not_found").Inc()
		return nil, fmt.Errorf("bestbuy: sku %s delisted: %w", sku, models.ErrNotFound)
	}

	metrics.SupplierRequests.WithLabelValues(c.Name(), "ok").Inc()

	return &ProductData{
		Price:     body.Price,
		Stock:     body.Quantity,
		Available: strings.EqualFold(body.Availability, "InStock"),
		Brand:     body.Brand,
		LeadTime:  body.LeadTime,
	}, nil
}

// Package supplier contains the connectors that read product state from
// external supplier APIs and the normalization rules shared by all of
// them.
package supplier

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ProductData is a supplier response reduced to the signals the sync
// engine cares about, before normalization.
type ProductData struct {
	Price     float64
	Stock     int
	Available bool
	Brand     string

	// LeadTime is the supplier-reported handling time in days. Zero
	// means the supplier did not report one and the store's configured
	// value applies.
	LeadTime int
}

// Connector fetches raw product data for one supplier identifier.
// Implementations classify failures: models.ErrNotFound when the supplier
// confirms the item does not exist, any other error for transient
// conditions worth retrying.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, sku string) (*ProductData, error)
}

// Factory builds a connector bound to a store's endpoint.
type Factory func(endpoint string, client *http.Client) Connector

var registry = map[string]Factory{}

// Register adds a connector factory under a supplier id. Called from
// init functions of the concrete connectors.
func Register(supplierID string, factory Factory) {
	registry[supplierID] = factory
}

// New resolves a connector for the supplier id.
func New(supplierID, endpoint string, timeout time.Duration) (Connector, error) {
	factory, ok := registry[supplierID]
	if !ok {
		return nil, fmt.Errorf("unknown supplier %q", supplierID)
	}

	client := &http.Client{Timeout: timeout}
	return factory(endpoint, client), nil
}

// Suppliers lists the registered supplier ids, sorted.
func Suppliers() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package models

import "time"

// Availability of a product on the supplier side.
type Availability string

const (
	InStock    Availability = "inStock"
	OutOfStock Availability = "outOfStock"
)

// MaxHandlingTime is the marketplace ceiling for combined handling time.
// Feeds with a higher value are rejected by the platform.
const MaxHandlingTime = 29

// Product is one tradable item of a store catalog. Business fields are
// written by Phase 1 only; Phase 2 touches nothing but the update flag.
type Product struct {
	SKU           string       `json:"sku"`        // supplier-side identifier
	SellerSKU     string       `json:"sku2"`       // marketplace-side identifier
	SupplierPrice float64      `json:"supplier_price"`
	Quantity      int          `json:"quantity"`
	Availability  Availability `json:"availability"`
	Brand         string       `json:"brand"`
	LeadTime      int          `json:"lead_time"`         // own handling time
	LeadTime2     int          `json:"lead_time_2"`       // supplier handling time
	HandlingTime  int          `json:"handling_time_amz"` // combined, capped at MaxHandlingTime
	UpdateFlag    int          `json:"update_flag"`       // per-store dirty tag, 0 = clean
	Problem       bool         `json:"problem"`
	LastUpdate    time.Time    `json:"last_update"`
}

// ProductUpdate carries the business fields Phase 1 writes in one statement.
type ProductUpdate struct {
	SupplierPrice float64
	Quantity      int
	Availability  Availability
	Brand         string
	LeadTime      int
	LeadTime2     int
	HandlingTime  int
	UpdateFlag    int
}

// Differs reports whether applying u would change any business field of p.
func (p *Product) Differs(u ProductUpdate) bool {
	return p.SupplierPrice != u.SupplierPrice ||
		p.Quantity != u.Quantity ||
		p.Availability != u.Availability ||
		p.Brand != u.Brand ||
		p.LeadTime != u.LeadTime ||
		p.LeadTime2 != u.LeadTime2 ||
		p.HandlingTime != u.HandlingTime
}

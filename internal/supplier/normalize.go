package supplier

import "github.com/elizandromoreira/feed-control-sub000/internal/domain/models"

// Normalize applies the store's business rules to raw supplier data and
// produces the candidate field values for the catalog row.
//
// Quantity is clamped to the store's stock cap and floored to zero when
// the raw figure is below the store's minimum threshold. Availability is
// kept coherent with quantity. The combined handling time is capped at
// the marketplace maximum; the second return value reports whether the
// cap cut it.
func Normalize(data *ProductData, store *models.Store) (models.ProductUpdate, bool) {
	quantity := data.Stock
	if !data.Available || quantity < store.MinStock {
		quantity = 0
	}
	if quantity > store.StockLevel {
		quantity = store.StockLevel
	}

	availability := models.InStock
	if quantity == 0 {
		availability = models.OutOfStock
	}

	supplierLead := data.LeadTime
	if supplierLead == 0 {
		supplierLead = store.SupplierLeadTime
	}

	combined := store.LeadTime + supplierLead
	capped := combined > models.MaxHandlingTime
	if capped {
		combined = models.MaxHandlingTime
	}

	return models.ProductUpdate{
		SupplierPrice: data.Price,
		Quantity:      quantity,
		Availability:  availability,
		Brand:         data.Brand,
		LeadTime:      store.LeadTime,
		LeadTime2:     supplierLead,
		HandlingTime:  combined,
	}, capped
}

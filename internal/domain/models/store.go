package models

import "time"

// Store is the configuration of one supplier catalog. Created at
// onboarding, never deleted, only deactivated.
type Store struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SupplierID string `json:"supplier_id"` // connector registry key

	// Connector parameters.
	Endpoint          string  `json:"endpoint"`
	RequestsPerSecond float64 `json:"requests_per_second"`

	// Business parameters.
	StockLevel       int `json:"stock_level"`        // cap applied to supplier stock figures
	MinStock         int `json:"min_stock"`          // below this raw stock the item is treated as out of stock
	LeadTime         int `json:"lead_time"`          // own handling time
	SupplierLeadTime int `json:"supplier_lead_time"` // supplier handling time
	UpdateFlagValue  int `json:"update_flag_value"`  // dirty tag written by Phase 1

	// Schedule state, owned by the Scheduler.
	Active        bool       `json:"active"`
	IntervalHours int        `json:"interval_hours"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	NextRun       *time.Time `json:"next_run,omitempty"`

	// Run state, owned by the sync runner.
	IsRunning bool `json:"is_running"`
}

// ScheduleState is the persisted slice of Store the Scheduler mutates.
type ScheduleState struct {
	Active        bool
	IntervalHours int
	LastRun       *time.Time
}

// Interval returns the schedule interval as a duration.
func (s *Store) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

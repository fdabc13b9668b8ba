package models

// Phase of a sync run.
const (
	PhaseIdle = 0
	PhaseSync = 1 // supplier fetch/diff/update
	PhaseFeed = 2 // marketplace feed submission
)

// SyncProgress is the live snapshot of a running store sync. It exists
// only while a run is active and is pushed to observers after every
// completed task.
type SyncProgress struct {
	StoreID           string `json:"store_id"`
	Phase             int    `json:"phase"`
	TotalProducts     int    `json:"total_products"`
	ProcessedProducts int    `json:"processed_products"`
	SuccessCount      int    `json:"success_count"`
	FailCount         int    `json:"fail_count"`
	UpdatedCount      int    `json:"updated_count"`
	CurrentBatch      int    `json:"current_batch"`
	TotalBatches      int    `json:"total_batches"`
	IsRunning         bool   `json:"is_running"`
}

// ProgressFunc receives a snapshot after every completed unit of work.
type ProgressFunc func(SyncProgress)

// SyncResult aggregates one Phase 1 run. Stock counts are unique SKUs,
// never per-call increments.
type SyncResult struct {
	StoreID       string `json:"store_id"`
	Total         int    `json:"total"`
	Processed     int    `json:"processed"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	Updated       int    `json:"updated"`
	StockInSKUs   int    `json:"stock_in_skus"`
	StockOutSKUs  int    `json:"stock_out_skus"`
	Cancelled     bool   `json:"cancelled"`
}

// FeedResult aggregates one Phase 2 run.
type FeedResult struct {
	StoreID     string `json:"store_id"`
	Batches     int    `json:"batches"`
	Submitted   int    `json:"submitted"` // products included in submitted feeds
	Accepted    int    `json:"accepted"`
	Rejected    int    `json:"rejected"`
	TimedOut    int    `json:"timed_out"` // batches that ended with an unknown outcome
	Cancelled   bool   `json:"cancelled"`
}

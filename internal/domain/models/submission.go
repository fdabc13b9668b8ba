package models

import (
	"encoding/json"
	"time"
)

// Feed submission types.
const (
	SubmissionTypeInventory = "inventory-update"
	SubmissionTypeReport    = "result-report"
)

// Feed submission statuses.
const (
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusProcessed = "processed"
	SubmissionStatusFailed    = "failed"
	SubmissionStatusUnknown   = "unknown" // polling budget exhausted before a terminal state
)

// FeedSubmission is the audit record of one marketplace feed. The payload
// is immutable once written; only status and result counts are updated
// after processing.
type FeedSubmission struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"store_id"`
	FeedID    string          `json:"feed_id"` // platform-assigned submission id
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	ItemCount int             `json:"item_count"`
	Accepted  int             `json:"accepted"`
	Rejected  int             `json:"rejected"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

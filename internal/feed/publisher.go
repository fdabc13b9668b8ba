package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/metrics"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/google/uuid"
)

// PlatformBatchCeiling is the hard marketplace limit on messages per
// feed. Configured batch sizes are always coerced to it, never passed
// through unchecked.
const PlatformBatchCeiling = 9990

// Options tunes one publisher instance.
type Options struct {
	SellerID        string
	BatchSize       int
	PollInterval    time.Duration
	PollMaxAttempts int
	SubmitMaxTries  int
}

func (o *Options) normalize() {
	if o.BatchSize <= 0 || o.BatchSize > PlatformBatchCeiling {
		o.BatchSize = PlatformBatchCeiling
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.PollMaxAttempts <= 0 {
		o.PollMaxAttempts = 20
	}
	if o.SubmitMaxTries <= 0 {
		o.SubmitMaxTries = 3
	}
}

// Publisher runs Phase 2 for one store at a time.
type Publisher struct {
	storage storage.Port
	client  Client
	logger  interfaces.LoggerPort
	opts    Options
}

func NewPublisher(st storage.Port, client Client, logger interfaces.LoggerPort, opts Options) *Publisher {
	opts.normalize()
	return &Publisher{storage: st, client: client, logger: logger, opts: opts}
}

// Run selects the store's dirty products, submits them in batches and
// polls each submission to its outcome. Dirty flags are reset only for
// batches that reach the "done" state; a poll timeout or fatal outcome
// leaves them untouched so the next Phase 1 pass decides again.
func (p *Publisher) Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.FeedResult, error) {
	log := p.logger.WithStore(store.ID)
	start := time.Now()

	dirty, err := p.storage.LoadDirtyProducts(ctx, store.ID, store.UpdateFlagValue)
	if err != nil {
		return nil, fmt.Errorf("failed to load dirty products: %w", err)
	}

	result := &models.FeedResult{StoreID: store.ID}
	if len(dirty) == 0 {
		log.Info("phase 2 skipped, nothing to publish")
		return result, nil
	}

	totalBatches := (len(dirty) + p.opts.BatchSize - 1) / p.opts.BatchSize
	log.Info("phase 2 started",
		interfaces.LogField{Key: "dirty_products", Value: len(dirty)},
		interfaces.LogField{Key: "batches", Value: totalBatches})

	notify := func(batch, processed int) {
		if progress == nil {
			return
		}
		progress(models.SyncProgress{
			StoreID:           store.ID,
			Phase:             models.PhaseFeed,
			TotalProducts:     len(dirty),
			ProcessedProducts: processed,
			CurrentBatch:      batch,
			TotalBatches:      totalBatches,
			IsRunning:         true,
		})
	}

	for batchStart := 0; batchStart < len(dirty); batchStart += p.opts.BatchSize {
		if cancelled() {
			result.Cancelled = true
			break
		}

		batchEnd := batchStart + p.opts.BatchSize
		if batchEnd > len(dirty) {
			batchEnd = len(dirty)
		}
		batch := dirty[batchStart:batchEnd]
		batchNo := batchStart/p.opts.BatchSize + 1

		if err := p.publishBatch(ctx, store, batch, batchNo, result); err != nil {
			metrics.FeedsSubmitted.WithLabelValues(store.ID, "failed").Inc()
			return nil, err
		}

		result.Batches++
		notify(batchNo, batchEnd)
	}

	metrics.SyncDuration.WithLabelValues(store.ID, "feed").Observe(time.Since(start).Seconds())
	log.Info("phase 2 finished",
		interfaces.LogField{Key: "batches", Value: result.Batches},
		interfaces.LogField{Key: "submitted", Value: result.Submitted},
		interfaces.LogField{Key: "accepted", Value: result.Accepted},
		interfaces.LogField{Key: "rejected", Value: result.Rejected},
		interfaces.LogField{Key: "timed_out", Value: result.TimedOut},
		interfaces.LogField{Key: "cancelled", Value: result.Cancelled})

	return result, nil
}

func (p *Publisher) publishBatch(ctx context.Context, store *models.Store, batch []*models.Product, batchNo int, result *models.FeedResult) error {
	log := p.logger.WithStore(store.ID)

	payload, err := BuildInventoryFeed(p.opts.SellerID, batch)
	if err != nil {
		return fmt.Errorf("failed to build feed payload for batch %d: %w", batchNo, err)
	}

	feedID, err := p.submitWithRetry(ctx, payload)
	if err != nil {
		return fmt.Errorf("batch %d: %w: %w", batchNo, models.ErrSubmissionFailed, err)
	}

	sub := &models.FeedSubmission{
		ID:        uuid.New().String(),
		StoreID:   store.ID,
		FeedID:    feedID,
		Type:      models.SubmissionTypeInventory,
		Payload:   payload,
		ItemCount: len(batch),
		Status:    models.SubmissionStatusSubmitted,
	}
	if err := p.storage.SaveSubmission(ctx, sub); err != nil {
		return fmt.Errorf("failed to persist submission %s: %w", feedID, err)
	}

	result.Submitted += len(batch)
	metrics.FeedsSubmitted.WithLabelValues(store.ID, "submitted").Inc()
	log.Info("feed submitted",
		interfaces.LogField{Key: "feed_id", Value: feedID},
		interfaces.LogField{Key: "batch", Value: batchNo},
		interfaces.LogField{Key: "items", Value: len(batch)})

	status, resultDocID, err := p.pollFeed(ctx, feedID)
	if err != nil {
		return err
	}

	switch status {
	case FeedStatusDone:
		summary, err := p.client.FetchReport(ctx, resultDocID)
		if err != nil {
			// The platform processed the feed; a lost report should not
			// hold the whole run hostage.
			log.Error("failed to fetch result report",
				interfaces.LogField{Key: "feed_id", Value: feedID},
				interfaces.LogField{Key: "error", Value: err.Error()})
			summary = &ReportSummary{Processed: len(batch), Accepted: len(batch)}
		} else {
			report := &models.FeedSubmission{
				ID:        uuid.New().String(),
				StoreID:   store.ID,
				FeedID:    feedID,
				Type:      models.SubmissionTypeReport,
				Payload:   summary.Raw,
				ItemCount: summary.Processed,
				Accepted:  summary.Accepted,
				Rejected:  summary.Rejected,
				Status:    models.SubmissionStatusProcessed,
			}
			if err := p.storage.SaveSubmission(ctx, report); err != nil {
				log.Error("failed to persist result report",
					interfaces.LogField{Key: "feed_id", Value: feedID},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		if err := p.storage.UpdateSubmissionResult(ctx, sub.ID, models.SubmissionStatusProcessed,
			summary.Accepted, summary.Rejected); err != nil {
			return fmt.Errorf("failed to record submission outcome: %w", err)
		}

		// Accept/reject verdicts do not matter here: a rejected item is
		// only re-submitted once Phase 1 flags it dirty again.
		skus := make([]string, len(batch))
		for i, item := range batch {
			skus[i] = item.SKU
		}
		if err := p.storage.ResetUpdateFlags(ctx, store.ID, skus); err != nil {
			return fmt.Errorf("failed to reset update flags: %w", err)
		}

		result.Accepted += summary.Accepted
		result.Rejected += summary.Rejected
		metrics.FeedItemsAccepted.WithLabelValues(store.ID, "accepted").Add(float64(summary.Accepted))
		metrics.FeedItemsAccepted.WithLabelValues(store.ID, "rejected").Add(float64(summary.Rejected))

	case FeedStatusCancelled, FeedStatusFatal:
		// Flags stay set: the batch is re-published on the next run.
		if err := p.storage.UpdateSubmissionResult(ctx, sub.ID, models.SubmissionStatusFailed, 0, 0); err != nil {
			return fmt.Errorf("failed to record submission outcome: %w", err)
		}
		log.Warn("feed ended in terminal failure state",
			interfaces.LogField{Key: "feed_id", Value: feedID},
			interfaces.LogField{Key: "status", Value: status})

	default:
		// Polling budget exhausted without a terminal state.
		if err := p.storage.UpdateSubmissionResult(ctx, sub.ID, models.SubmissionStatusUnknown, 0, 0); err != nil {
			return fmt.Errorf("failed to record submission outcome: %w", err)
		}
		result.TimedOut++
		log.Warn("feed outcome unknown after polling budget",
			interfaces.LogField{Key: "feed_id", Value: feedID},
			interfaces.LogField{Key: "last_status", Value: status})
	}

	return nil
}

// submitWithRetry retries the whole submit sequence a bounded number of
// times. A 429 inside the client surfaces as backoff.RetryAfter, so the
// wait honours the platform's Retry-After header.
func (p *Publisher) submitWithRetry(ctx context.Context, payload []byte) (string, error) {
	operation := func() (string, error) {
		return p.client.SubmitInventoryFeed(ctx, payload)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(p.opts.SubmitMaxTries)),
	)
}

// pollFeed polls on a fixed interval until a terminal status or the
// attempt budget runs out. The last observed status is returned either
// way; the caller decides what a non-terminal status means.
func (p *Publisher) pollFeed(ctx context.Context, feedID string) (string, string, error) {
	status := ""
	resultDocID := ""

	for attempt := 1; attempt <= p.opts.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(p.opts.PollInterval):
		}

		var err error
		status, resultDocID, err = p.client.FeedStatus(ctx, feedID)
		if err != nil {
			p.logger.Warn("feed status check failed",
				interfaces.LogField{Key: "feed_id", Value: feedID},
				interfaces.LogField{Key: "attempt", Value: attempt},
				interfaces.LogField{Key: "error", Value: err.Error()})
			continue
		}

		switch status {
		case FeedStatusDone, FeedStatusCancelled, FeedStatusFatal:
			return status, resultDocID, nil
		}
	}

	return status, resultDocID, nil
}

// feedMessage is one PARTIAL_UPDATE entry of the listings feed.
type feedMessage struct {
	MessageID     int                    `json:"messageId"`
	SKU           string                 `json:"sku"`
	OperationType string                 `json:"operationType"`
	ProductType   string                 `json:"productType"`
	Attributes    map[string]interface{} `json:"attributes"`
}

type feedDocument struct {
	Header struct {
		SellerID    string `json:"sellerId"`
		Version     string `json:"version"`
		IssueLocale string `json:"issueLocale"`
	} `json:"header"`
	Messages []feedMessage `json:"messages"`
}

// BuildInventoryFeed renders a JSON_LISTINGS_FEED document carrying
// quantity and handling time for each product.
func BuildInventoryFeed(sellerID string, batch []*models.Product) (json.RawMessage, error) {
	doc := feedDocument{Messages: make([]feedMessage, 0, len(batch))}
	doc.Header.SellerID = sellerID
	doc.Header.Version = "2.0"
	doc.Header.IssueLocale = "en_US"

	for i, p := range batch {
		doc.Messages = append(doc.Messages, feedMessage{
			MessageID:     i + 1,
			SKU:           p.SellerSKU,
			OperationType: "PARTIAL_UPDATE",
			ProductType:   "PRODUCT",
			Attributes: map[string]interface{}{
				"fulfillment_availability": []map[string]interface{}{
					{
						"fulfillment_channel_code":   "DEFAULT",
						"quantity":                   p.Quantity,
						"lead_time_to_ship_max_days": p.HandlingTime,
					},
				},
			},
		})
	}

	return json.Marshal(doc)
}

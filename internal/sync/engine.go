// Package sync implements Phase 1 of a catalog run: fetch current state
// from the supplier for every product, diff it against the stored row
// and write back what changed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosync "sync"

	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/metrics"
	"github.com/elizandromoreira/feed-control-sub000/internal/supplier"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
)

// Options tunes one engine instance. Zero values fall back to defaults.
type Options struct {
	BatchSize    int           // products queued per cancellation checkpoint
	FetchTimeout time.Duration // per-request supplier timeout
	MaxTries     int           // supplier fetch attempts per product
}

func (o *Options) normalize() {
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.MaxTries <= 0 {
		o.MaxTries = 3
	}
}

// Engine runs Phase 1 for one store at a time.
type Engine struct {
	storage storage.Port
	logger  interfaces.LoggerPort
	opts    Options
}

func NewEngine(st storage.Port, logger interfaces.LoggerPort, opts Options) *Engine {
	opts.normalize()
	return &Engine{storage: st, logger: logger, opts: opts}
}

// runState accumulates counters across queue workers.
type runState struct {
	mu        gosync.Mutex
	processed int
	succeeded int
	failed    int
	updated   int
	batch     int
	stockIn   map[string]struct{}
	stockOut  map[string]struct{}
}

// Run executes Phase 1 for the store. Individual item failures are
// absorbed into counters; only a storage failure aborts the run.
// cancelled is polled before each batch and before each queued fetch.
func (e *Engine) Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.SyncResult, error) {
	log := e.logger.WithStore(store.ID)
	start := time.Now()

	conn, err := supplier.New(store.SupplierID, store.Endpoint, e.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}

	products, err := e.storage.LoadProducts(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	total := len(products)
	totalBatches := (total + e.opts.BatchSize - 1) / e.opts.BatchSize

	queue := ForRate(store.RequestsPerSecond)
	defer queue.Close()

	log.Info("phase 1 started",
		interfaces.LogField{Key: "products", Value: total},
		interfaces.LogField{Key: "batches", Value: totalBatches},
		interfaces.LogField{Key: "workers", Value: queue.Workers()})

	state := &runState{
		stockIn:  make(map[string]struct{}),
		stockOut: make(map[string]struct{}),
	}

	result := &models.SyncResult{Total: total}

	// Invoked after every task completion. notifyMu orders concurrent
	// deliveries so the observer never sees counters move backwards.
	var notifyMu gosync.Mutex
	notify := func() {
		if progress == nil {
			return
		}
		notifyMu.Lock()
		defer notifyMu.Unlock()
		state.mu.Lock()
		snap := models.SyncProgress{
			StoreID:           store.ID,
			Phase:             models.PhaseSync,
			TotalProducts:     total,
			ProcessedProducts: state.processed,
			SuccessCount:      state.succeeded,
			FailCount:         state.failed,
			UpdatedCount:      state.updated,
			CurrentBatch:      state.batch,
			TotalBatches:      totalBatches,
			IsRunning:         true,
		}
		state.mu.Unlock()
		progress(snap)
	}

	for batchStart := 0; batchStart < total; batchStart += e.opts.BatchSize {
		if cancelled() {
			queue.Drain()
			result.Cancelled = true
			break
		}

		batchEnd := batchStart + e.opts.BatchSize
		if batchEnd > total {
			batchEnd = total
		}
		state.mu.Lock()
		state.batch = batchStart/e.opts.BatchSize + 1
		state.mu.Unlock()

		waits := make([]<-chan error, 0, batchEnd-batchStart)
		for _, p := range products[batchStart:batchEnd] {
			waits = append(waits, queue.Enqueue(e.productTask(ctx, conn, store, p, state, notify, cancelled)))
		}

		var fatal error
		for _, wait := range waits {
			if err := <-wait; err != nil && !errors.Is(err, models.ErrCancelled) && fatal == nil {
				fatal = err
			}
		}

		if fatal != nil {
			queue.Drain()
			return nil, fatal
		}
	}

	state.mu.Lock()
	result.Processed = state.processed
	result.Succeeded = state.succeeded
	result.Failed = state.failed
	result.Updated = state.updated
	result.StockInSKUs = len(state.stockIn)
	result.StockOutSKUs = len(state.stockOut)
	state.mu.Unlock()

	metrics.SyncDuration.WithLabelValues(store.ID, "sync").Observe(time.Since(start).Seconds())
	log.Info("phase 1 finished",
		interfaces.LogField{Key: "processed", Value: result.Processed},
		interfaces.LogField{Key: "updated", Value: result.Updated},
		interfaces.LogField{Key: "failed", Value: result.Failed},
		interfaces.LogField{Key: "stock_in", Value: result.StockInSKUs},
		interfaces.LogField{Key: "stock_out", Value: result.StockOutSKUs},
		interfaces.LogField{Key: "cancelled", Value: result.Cancelled})

	return result, nil
}

// productTask builds the queue closure for one product. The returned
// error is nil for handled items (success or absorbed failure),
// ErrCancelled for a short-circuited task, and a storage error when
// persistence itself failed — the one case fatal to the run.
func (e *Engine) productTask(ctx context.Context, conn supplier.Connector, store *models.Store, p *models.Product, state *runState, notify func(), cancelled func() bool) func() error {
	log := e.logger.WithStore(store.ID)

	return func() error {
		if cancelled() {
			return models.ErrCancelled
		}

		data, err := supplier.FetchWithRetry(ctx, conn, p.SKU, e.opts.MaxTries)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Terminal: flag the row and tag it dirty so Phase 2
				// sweeps it out of the needs-processing set.
				if serr := e.storage.MarkProblem(ctx, store.ID, p.SKU, store.UpdateFlagValue); serr != nil {
					return serr
				}
				log.Warn("product not found at supplier", interfaces.LogField{Key: "sku", Value: p.SKU})
			} else {
				log.Warn("fetch failed after retries",
					interfaces.LogField{Key: "sku", Value: p.SKU},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
			state.mu.Lock()
			state.processed++
			state.failed++
			state.mu.Unlock()
			metrics.ProductsProcessed.WithLabelValues(store.ID, "failed").Inc()
			notify()
			return nil
		}

		update, capped := supplier.Normalize(data, store)
		if capped {
			log.Warn("handling time clamped to marketplace maximum",
				interfaces.LogField{Key: "sku", Value: p.SKU})
		}

		if p.Differs(update) {
			update.UpdateFlag = store.UpdateFlagValue
			if serr := e.storage.UpdateProduct(ctx, store.ID, p.SKU, update); serr != nil {
				return serr
			}
			state.mu.Lock()
			state.updated++
			state.mu.Unlock()
			metrics.ProductsProcessed.WithLabelValues(store.ID, "updated").Inc()
		} else {
			if serr := e.storage.TouchLastUpdate(ctx, store.ID, p.SKU); serr != nil {
				return serr
			}
			metrics.ProductsProcessed.WithLabelValues(store.ID, "unchanged").Inc()
		}

		state.mu.Lock()
		state.processed++
		state.succeeded++
		if update.Quantity > 0 {
			state.stockIn[p.SKU] = struct{}{}
		} else {
			state.stockOut[p.SKU] = struct{}{}
		}
		state.mu.Unlock()
		notify()

		return nil
	}
}

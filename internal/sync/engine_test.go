package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gosync "sync"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is an in-memory storage.Port for engine tests.
type fakeStorage struct {
	mu       gosync.Mutex
	products []*models.Product
	updates  map[string]models.ProductUpdate
	touched  map[string]int
	problems map[string]int
	loadErr  error
	writeErr error
}

func newFakeStorage(products ...*models.Product) *fakeStorage {
	return &fakeStorage{
		products: products,
		updates:  make(map[string]models.ProductUpdate),
		touched:  make(map[string]int),
		problems: make(map[string]int),
	}
}

func (f *fakeStorage) LoadProducts(ctx context.Context, storeID string) ([]*models.Product, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.products, nil
}

func (f *fakeStorage) UpdateProduct(ctx context.Context, storeID, sku string, u models.ProductUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.updates[sku] = u
	return nil
}

func (f *fakeStorage) TouchLastUpdate(ctx context.Context, storeID, sku string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[sku]++
	return nil
}

func (f *fakeStorage) MarkProblem(ctx context.Context, storeID, sku string, flag int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.problems[sku] = flag
	return nil
}

func (f *fakeStorage) LoadDirtyProducts(ctx context.Context, storeID string, flag int) ([]*models.Product, error) {
	return nil, nil
}

func (f *fakeStorage) ResetUpdateFlags(ctx context.Context, storeID string, skus []string) error {
	return nil
}

func (f *fakeStorage) GetStore(ctx context.Context, storeID string) (*models.Store, error) {
	return nil, models.ErrStoreNotFound
}

func (f *fakeStorage) ListActiveStores(ctx context.Context) ([]*models.Store, error) {
	return nil, nil
}

func (f *fakeStorage) SaveScheduleState(ctx context.Context, storeID string, st models.ScheduleState) error {
	return nil
}

func (f *fakeStorage) SaveRunState(ctx context.Context, storeID string, isRunning bool) error {
	return nil
}

func (f *fakeStorage) SaveSubmission(ctx context.Context, sub *models.FeedSubmission) error {
	return nil
}

func (f *fakeStorage) UpdateSubmissionResult(ctx context.Context, id, status string, accepted, rejected int) error {
	return nil
}

func (f *fakeStorage) ListSubmissions(ctx context.Context, storeID string, limit int) ([]*models.FeedSubmission, error) {
	return nil, nil
}

func (f *fakeStorage) Close() error { return nil }

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}
func (l noopLogger) WithField(string, interface{}) interfaces.LoggerPort {
	return l
}
func (l noopLogger) WithStore(string) interfaces.LoggerPort { return l }
func (noopLogger) Sync() error                              { return nil }

func engineStore(endpoint string) *models.Store {
	return &models.Store{
		ID:                "store-1",
		SupplierID:        "bestbuy",
		Endpoint:          endpoint,
		RequestsPerSecond: 2,
		StockLevel:        30,
		MinStock:          3,
		LeadTime:          2,
		SupplierLeadTime:  5,
		UpdateFlagValue:   7,
	}
}

func never() bool  { return false }
func always() bool { return true }

// supplierServer answers the Best Buy proxy shape: a fixed payload per
// sku, 404 for anything it does not know.
func supplierServer(t *testing.T, payloads map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sku := r.URL.Path[len("/product/"):]
		body, ok := payloads[sku]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
}

func TestEngineUpdatesChangedAndTouchesUnchanged(t *testing.T) {
	srv := supplierServer(t, map[string]string{
		"CHANGED":   `{"price":10,"availability":"InStock","quantity":12,"brand":"Acme","leadTime":4}`,
		"UNCHANGED": `{"price":10,"availability":"InStock","quantity":12,"brand":"Acme","leadTime":4}`,
	})
	defer srv.Close()

	unchanged := &models.Product{
		SKU: "UNCHANGED", SupplierPrice: 10, Quantity: 12, Availability: models.InStock,
		Brand: "Acme", LeadTime: 2, LeadTime2: 4, HandlingTime: 6,
	}
	changed := &models.Product{SKU: "CHANGED", SupplierPrice: 5, Quantity: 1, Availability: models.InStock}

	st := newFakeStorage(changed, unchanged)
	engine := NewEngine(st, noopLogger{}, Options{})

	result, err := engine.Run(context.Background(), engineStore(srv.URL), nil, never)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Failed)

	update, ok := st.updates["CHANGED"]
	require.True(t, ok)
	assert.Equal(t, 7, update.UpdateFlag)
	assert.Equal(t, 12, update.Quantity)
	assert.Equal(t, 6, update.HandlingTime)

	assert.NotContains(t, st.updates, "UNCHANGED")
	assert.Equal(t, 1, st.touched["UNCHANGED"])
}

func TestEngineNotFoundSetsProblemAndDirtyTag(t *testing.T) {
	srv := supplierServer(t, map[string]string{})
	defer srv.Close()

	st := newFakeStorage(&models.Product{SKU: "GONE"})
	engine := NewEngine(st, noopLogger{}, Options{})

	result, err := engine.Run(context.Background(), engineStore(srv.URL), nil, never)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Succeeded)
	assert.Equal(t, 7, st.problems["GONE"])
	assert.NotContains(t, st.updates, "GONE")
}

func TestEngineStockCountsAreUniqueSets(t *testing.T) {
	srv := supplierServer(t, map[string]string{
		"IN-1":  `{"price":1,"availability":"InStock","quantity":10,"brand":"A"}`,
		"IN-2":  `{"price":1,"availability":"InStock","quantity":10,"brand":"A"}`,
		"OUT-1": `{"price":1,"availability":"OutOfStock","quantity":0,"brand":"A"}`,
	})
	defer srv.Close()

	st := newFakeStorage(
		&models.Product{SKU: "IN-1"},
		&models.Product{SKU: "IN-2"},
		&models.Product{SKU: "OUT-1"},
	)
	engine := NewEngine(st, noopLogger{}, Options{})

	result, err := engine.Run(context.Background(), engineStore(srv.URL), nil, never)
	require.NoError(t, err)

	assert.Equal(t, 2, result.StockInSKUs)
	assert.Equal(t, 1, result.StockOutSKUs)
}

func TestEngineCancellationSkipsWork(t *testing.T) {
	srv := supplierServer(t, map[string]string{
		"SKU-1": `{"price":1,"availability":"InStock","quantity":10,"brand":"A"}`,
	})
	defer srv.Close()

	st := newFakeStorage(&models.Product{SKU: "SKU-1"})
	engine := NewEngine(st, noopLogger{}, Options{})

	result, err := engine.Run(context.Background(), engineStore(srv.URL), nil, always)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Zero(t, result.Processed)
	assert.Empty(t, st.updates)
}

func TestEngineLoadFailureIsFatal(t *testing.T) {
	st := newFakeStorage()
	st.loadErr = errors.New("connection refused")
	engine := NewEngine(st, noopLogger{}, Options{})

	_, err := engine.Run(context.Background(), engineStore("http://localhost:0"), nil, never)
	assert.Error(t, err)
}

func TestEnginePersistFailureIsFatal(t *testing.T) {
	srv := supplierServer(t, map[string]string{
		"SKU-1": `{"price":1,"availability":"InStock","quantity":10,"brand":"A"}`,
	})
	defer srv.Close()

	st := newFakeStorage(&models.Product{SKU: "SKU-1"})
	st.writeErr = errors.New("disk full")
	engine := NewEngine(st, noopLogger{}, Options{})

	_, err := engine.Run(context.Background(), engineStore(srv.URL), nil, never)
	assert.Error(t, err)
}

func TestEngineProgressSnapshots(t *testing.T) {
	payloads := make(map[string]string)
	products := make([]*models.Product, 0, 6)
	for i := 0; i < 6; i++ {
		sku := fmt.Sprintf("SKU-%d", i)
		payloads[sku] = `{"price":1,"availability":"InStock","quantity":10,"brand":"A"}`
		products = append(products, &models.Product{SKU: sku})
	}
	srv := supplierServer(t, payloads)
	defer srv.Close()

	st := newFakeStorage(products...)
	engine := NewEngine(st, noopLogger{}, Options{BatchSize: 2, FetchTimeout: time.Second})

	var mu gosync.Mutex
	var snaps []models.SyncProgress
	progress := func(snap models.SyncProgress) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	}

	_, err := engine.Run(context.Background(), engineStore(srv.URL), progress, never)
	require.NoError(t, err)

	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.Equal(t, models.PhaseSync, last.Phase)
	assert.Equal(t, 6, last.ProcessedProducts)
	assert.Equal(t, 3, last.TotalBatches)
	assert.Equal(t, 3, last.CurrentBatch)
}

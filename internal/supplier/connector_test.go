package supplier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesKnownSuppliers(t *testing.T) {
	for _, id := range []string{"bestbuy", "vitacost"} {
		conn, err := New(id, "http://localhost", time.Second)
		require.NoError(t, err)
		assert.Equal(t, id, conn.Name())
	}

	_, err := New("nope", "http://localhost", time.Second)
	assert.Error(t, err)
}

func TestBestBuyFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product/SKU-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sku":"SKU-1","price":19.99,"availability":"InStock","quantity":12,"brand":"Acme","leadTime":4}`))
	}))
	defer srv.Close()

	conn, err := New("bestbuy", srv.URL, time.Second)
	require.NoError(t, err)

	data, err := conn.Fetch(context.Background(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 19.99, data.Price)
	assert.Equal(t, 12, data.Stock)
	assert.True(t, data.Available)
	assert.Equal(t, "Acme", data.Brand)
	assert.Equal(t, 4, data.LeadTime)
}

func TestBestBuyFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	conn, err := New("bestbuy", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "MISSING")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBestBuyDelistedIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sku":"SKU-1","price":0,"availability":"","quantity":0}`))
	}))
	defer srv.Close()

	conn, err := New("bestbuy", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "SKU-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBestBuyServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	conn, err := New("bestbuy", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "SKU-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestVitacostFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/items/V-9", r.URL.Path)
		w.Write([]byte(`{"found":true,"product":{"price":7.5,"in_stock":true,"stock":40,"brand":"Vita"}}`))
	}))
	defer srv.Close()

	conn, err := New("vitacost", srv.URL, time.Second)
	require.NoError(t, err)

	data, err := conn.Fetch(context.Background(), "V-9")
	require.NoError(t, err)
	assert.Equal(t, 7.5, data.Price)
	assert.Equal(t, 40, data.Stock)
	assert.True(t, data.Available)
	assert.Equal(t, "Vita", data.Brand)
	assert.Zero(t, data.LeadTime)
}

func TestVitacostNotFoundBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"found":false}`))
	}))
	defer srv.Close()

	conn, err := New("vitacost", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "V-0")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// stubConnector scripts Fetch outcomes for retry tests.
type stubConnector struct {
	calls   int32
	results []error
	data    *ProductData
}

func (s *stubConnector) Name() string { return "stub" }

func (s *stubConnector) Fetch(ctx context.Context, sku string) (*ProductData, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if int(n) <= len(s.results) && s.results[n-1] != nil {
		return nil, s.results[n-1]
	}
	return s.data, nil
}

func TestFetchWithRetryRecoversFromTransient(t *testing.T) {
	stub := &stubConnector{
		results: []error{errors.New("timeout"), nil},
		data:    &ProductData{Price: 1, Stock: 5, Available: true},
	}

	data, err := FetchWithRetry(context.Background(), stub, "SKU", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, data.Stock)
	assert.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))
}

func TestFetchWithRetryExhaustsTransient(t *testing.T) {
	transient := errors.New("connection reset")
	stub := &stubConnector{results: []error{transient, transient, transient}}

	_, err := FetchWithRetry(context.Background(), stub, "SKU", 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(3), atomic.LoadInt32(&stub.calls))
}

func TestFetchWithRetryNotFoundShortCircuits(t *testing.T) {
	stub := &stubConnector{results: []error{models.ErrNotFound, nil, nil}}

	_, err := FetchWithRetry(context.Background(), stub, "SKU", 3)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls))
}

func TestStepBackOffGrowsAndCaps(t *testing.T) {
	b := &stepBackOff{step: time.Second, max: 3 * time.Second}

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

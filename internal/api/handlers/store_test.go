package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/adapters/storage"
	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/elizandromoreira/feed-control-sub000/internal/scheduler"
	"github.com/elizandromoreira/feed-control-sub000/internal/service"
	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiStorage overrides only the methods the handlers reach; the embedded
// nil Port panics loudly if anything else is called.
type apiStorage struct {
	storage.Port
	stores map[string]*models.Store
	subs   []*models.FeedSubmission
}

func (s *apiStorage) GetStore(ctx context.Context, storeID string) (*models.Store, error) {
	st, ok := s.stores[storeID]
	if !ok {
		return nil, models.ErrStoreNotFound
	}
	copied := *st
	return &copied, nil
}

func (s *apiStorage) ListActiveStores(ctx context.Context) ([]*models.Store, error) {
	var out []*models.Store
	for _, st := range s.stores {
		if st.Active {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *apiStorage) SaveScheduleState(ctx context.Context, storeID string, state models.ScheduleState) error {
	st, ok := s.stores[storeID]
	if !ok {
		return models.ErrStoreNotFound
	}
	st.Active = state.Active
	st.IntervalHours = state.IntervalHours
	return nil
}

func (s *apiStorage) SaveRunState(ctx context.Context, storeID string, isRunning bool) error {
	return nil
}

func (s *apiStorage) ListSubmissions(ctx context.Context, storeID string, limit int) ([]*models.FeedSubmission, error) {
	return s.subs, nil
}

type stubEngine struct{}

func (stubEngine) Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.SyncResult, error) {
	return &models.SyncResult{}, nil
}

type stubPublisher struct{}

func (stubPublisher) Run(ctx context.Context, store *models.Store, progress models.ProgressFunc, cancelled func() bool) (*models.FeedResult, error) {
	return &models.FeedResult{}, nil
}

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

func testRouter(t *testing.T, st *apiStorage) chi.Router {
	t.Helper()

	runner := service.NewRunner(st, stubEngine{}, stubPublisher{}, nil, nil, noopLogger{}, service.Options{})
	sched := scheduler.New(st, runner, noopLogger{})
	t.Cleanup(sched.Stop)

	h := NewStoreHandler(runner, sched, st, noopLogger{})

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Route("/stores", func(r chi.Router) {
		r.Get("/", h.ListStores)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetStore)
			r.Post("/sync", h.StartSync)
			r.Post("/sync/cancel", h.CancelSync)
			r.Get("/progress", h.GetProgress)
			r.Post("/schedule", h.ActivateSchedule)
			r.Delete("/schedule", h.CancelSchedule)
			r.Get("/submissions", h.ListSubmissions)
		})
	})
	return r
}

func do(t *testing.T, router chi.Router, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seededStorage() *apiStorage {
	lastRun := time.Now().Add(-time.Hour)
	return &apiStorage{
		stores: map[string]*models.Store{
			"store-1": {ID: "store-1", Name: "Best Buy US", SupplierID: "bestbuy", Active: true, IntervalHours: 4, LastRun: &lastRun},
		},
		subs: []*models.FeedSubmission{
			{ID: "sub-1", StoreID: "store-1", FeedID: "FEED-1", Type: models.SubmissionTypeInventory, Status: models.SubmissionStatusProcessed},
		},
	}
}

func TestHealth(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStore(t *testing.T) {
	router := testRouter(t, seededStorage())

	rec := do(t, router, http.MethodGet, "/stores/store-1/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool         `json:"success"`
		Data    models.Store `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "store-1", body.Data.ID)
	assert.False(t, body.Data.IsRunning)
}

func TestGetStoreNotFound(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodGet, "/stores/missing/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartSyncAccepted(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodPost, "/stores/store-1/sync", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStartSyncUnknownStore(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodPost, "/stores/missing/sync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWithoutRun(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodPost, "/stores/store-1/sync/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressIdle(t *testing.T) {
	router := testRouter(t, seededStorage())

	rec := do(t, router, http.MethodGet, "/stores/store-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data models.SyncProgress `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.PhaseIdle, body.Data.Phase)
	assert.False(t, body.Data.IsRunning)
}

func TestActivateSchedule(t *testing.T) {
	st := seededStorage()
	router := testRouter(t, st)

	rec := do(t, router, http.MethodPost, "/stores/store-1/schedule", []byte(`{"interval_hours":6}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, st.stores["store-1"].IntervalHours)
	assert.True(t, st.stores["store-1"].Active)
}

func TestActivateScheduleRejectsBadInterval(t *testing.T) {
	router := testRouter(t, seededStorage())

	rec := do(t, router, http.MethodPost, "/stores/store-1/schedule", []byte(`{"interval_hours":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/stores/store-1/schedule", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSchedule(t *testing.T) {
	st := seededStorage()
	router := testRouter(t, st)

	rec := do(t, router, http.MethodDelete, "/stores/store-1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.stores["store-1"].Active)
}

func TestListSubmissions(t *testing.T) {
	router := testRouter(t, seededStorage())

	rec := do(t, router, http.MethodGet, "/stores/store-1/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []models.FeedSubmission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "FEED-1", body.Data[0].FeedID)
}

func TestListSubmissionsRejectsBadLimit(t *testing.T) {
	router := testRouter(t, seededStorage())
	rec := do(t, router, http.MethodGet, "/stores/store-1/submissions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

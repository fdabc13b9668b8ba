package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elizandromoreira/feed-control-sub000/internal/domain/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Port is the catalog persistence contract consumed by the sync engine,
// the feed publisher and the scheduler. Every operation borrows one
// connection from the pool; no transaction ever spans multiple rows.
type Port interface {
	// Product rows.
	LoadProducts(ctx context.Context, storeID string) ([]*models.Product, error)
	UpdateProduct(ctx context.Context, storeID, sku string, update models.ProductUpdate) error
	TouchLastUpdate(ctx context.Context, storeID, sku string) error
	MarkProblem(ctx context.Context, storeID, sku string, updateFlag int) error
	LoadDirtyProducts(ctx context.Context, storeID string, updateFlag int) ([]*models.Product, error)
	ResetUpdateFlags(ctx context.Context, storeID string, skus []string) error

	// Store configuration and state.
	GetStore(ctx context.Context, storeID string) (*models.Store, error)
	ListActiveStores(ctx context.Context) ([]*models.Store, error)
	SaveScheduleState(ctx context.Context, storeID string, state models.ScheduleState) error
	SaveRunState(ctx context.Context, storeID string, isRunning bool) error

	// Feed submission audit trail.
	SaveSubmission(ctx context.Context, sub *models.FeedSubmission) error
	UpdateSubmissionResult(ctx context.Context, id, status string, accepted, rejected int) error
	ListSubmissions(ctx context.Context, storeID string, limit int) ([]*models.FeedSubmission, error)

	Close() error
}

// CatalogStorage implements Port on PostgreSQL.
type CatalogStorage struct {
	pool *pgxpool.Pool
}

// NewCatalogStorage connects a pool to the given connection string.
func NewCatalogStorage(ctx context.Context, connectionString string) (*CatalogStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &CatalogStorage{pool: pool}, nil
}

// NewCatalogStorageWithPool wraps an existing pool.
func NewCatalogStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*CatalogStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &CatalogStorage{pool: pool}, nil
}

func (s *CatalogStorage) Close() error {
	s.pool.Close()
	return nil
}

const productColumns = `sku, sku2, supplier_price, quantity, availability, brand,
	lead_time, lead_time_2, handling_time_amz, update_flag, problem, last_update`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.SKU, &p.SellerSKU, &p.SupplierPrice, &p.Quantity, &p.Availability,
		&p.Brand, &p.LeadTime, &p.LeadTime2, &p.HandlingTime, &p.UpdateFlag,
		&p.Problem, &p.LastUpdate)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProducts returns every row of the store ordered by last_update
// ascending, so the longest-stale items are refreshed first each run.
func (s *CatalogStorage) LoadProducts(ctx context.Context, storeID string) ([]*models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE store_id = $1
		ORDER BY last_update ASC
	`

	rows, err := s.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, nil
}

// UpdateProduct writes all business fields and the dirty flag in a single
// statement, refreshing last_update.
func (s *CatalogStorage) UpdateProduct(ctx context.Context, storeID, sku string, update models.ProductUpdate) error {
	query := `
		UPDATE products SET
			supplier_price = $3, quantity = $4, availability = $5, brand = $6,
			lead_time = $7, lead_time_2 = $8, handling_time_amz = $9,
			update_flag = $10, last_update = $11
		WHERE store_id = $1 AND sku = $2
	`

	tag, err := s.pool.Exec(ctx, query, storeID, sku,
		update.SupplierPrice, update.Quantity, update.Availability, update.Brand,
		update.LeadTime, update.LeadTime2, update.HandlingTime,
		update.UpdateFlag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", sku, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: no rows updated", sku)
	}
	return nil
}

// TouchLastUpdate refreshes last_update only, for rows with no changes.
func (s *CatalogStorage) TouchLastUpdate(ctx context.Context, storeID, sku string) error {
	query := `UPDATE products SET last_update = $3 WHERE store_id = $1 AND sku = $2`

	if _, err := s.pool.Exec(ctx, query, storeID, sku, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to touch product %s: %w", sku, err)
	}
	return nil
}

// MarkProblem flags a terminally missing item. The dirty flag is set too
// so Phase 2 sweeps the row out of the needs-processing set.
func (s *CatalogStorage) MarkProblem(ctx context.Context, storeID, sku string, updateFlag int) error {
	query := `
		UPDATE products SET problem = TRUE, update_flag = $3, last_update = $4
		WHERE store_id = $1 AND sku = $2
	`

	if _, err := s.pool.Exec(ctx, query, storeID, sku, updateFlag, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark problem on product %s: %w", sku, err)
	}
	return nil
}

// LoadDirtyProducts returns the rows whose update flag matches the store's
// configured tag value.
func (s *CatalogStorage) LoadDirtyProducts(ctx context.Context, storeID string, updateFlag int) ([]*models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE store_id = $1 AND update_flag = $2
	`

	rows, err := s.pool.Query(ctx, query, storeID, updateFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load dirty products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, nil
}

// ResetUpdateFlags clears the dirty flag for the given SKUs.
func (s *CatalogStorage) ResetUpdateFlags(ctx context.Context, storeID string, skus []string) error {
	if len(skus) == 0 {
		return nil
	}

	query := `UPDATE products SET update_flag = 0 WHERE store_id = $1 AND sku = ANY($2)`

	if _, err := s.pool.Exec(ctx, query, storeID, skus); err != nil {
		return fmt.Errorf("failed to reset update flags: %w", err)
	}
	return nil
}

const storeColumns = `id, name, supplier_id, endpoint, requests_per_second,
	stock_level, min_stock, lead_time, supplier_lead_time, update_flag_value,
	active, interval_hours, last_run, next_run, is_running`

func scanStore(row pgx.Row) (*models.Store, error) {
	var st models.Store
	err := row.Scan(&st.ID, &st.Name, &st.SupplierID, &st.Endpoint, &st.RequestsPerSecond,
		&st.StockLevel, &st.MinStock, &st.LeadTime, &st.SupplierLeadTime, &st.UpdateFlagValue,
		&st.Active, &st.IntervalHours, &st.LastRun, &st.NextRun, &st.IsRunning)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStore loads one store configuration.
func (s *CatalogStorage) GetStore(ctx context.Context, storeID string) (*models.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1`

	st, err := scanStore(s.pool.QueryRow(ctx, query, storeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoreNotFound
		}
		return nil, fmt.Errorf("failed to get store %s: %w", storeID, err)
	}
	return st, nil
}

// ListActiveStores returns every store with the active flag set; used by
// the scheduler's startup recovery.
func (s *CatalogStorage) ListActiveStores(ctx context.Context) ([]*models.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE active = TRUE ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active stores: %w", err)
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		stores = append(stores, st)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating store rows: %w", rows.Err())
	}

	return stores, nil
}

// SaveScheduleState persists the scheduler-owned slice of the store row.
func (s *CatalogStorage) SaveScheduleState(ctx context.Context, storeID string, state models.ScheduleState) error {
	query := `
		UPDATE stores SET active = $2, interval_hours = $3, last_run = $4
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, storeID, state.Active, state.IntervalHours, state.LastRun)
	if err != nil {
		return fmt.Errorf("failed to save schedule state for store %s: %w", storeID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoreNotFound
	}
	return nil
}

// SaveRunState persists the running flag.
func (s *CatalogStorage) SaveRunState(ctx context.Context, storeID string, isRunning bool) error {
	query := `UPDATE stores SET is_running = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, storeID, isRunning); err != nil {
		return fmt.Errorf("failed to save run state for store %s: %w", storeID, err)
	}
	return nil
}

// SaveSubmission inserts a feed submission audit row.
func (s *CatalogStorage) SaveSubmission(ctx context.Context, sub *models.FeedSubmission) error {
	query := `
		INSERT INTO feed_submissions (id, store_id, feed_id, type, payload,
			item_count, accepted, rejected, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	_, err := s.pool.Exec(ctx, query, sub.ID, sub.StoreID, sub.FeedID, sub.Type, sub.Payload,
		sub.ItemCount, sub.Accepted, sub.Rejected, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save feed submission: %w", err)
	}
	return nil
}

// UpdateSubmissionResult records the final outcome of a submission. The
// payload is never rewritten.
func (s *CatalogStorage) UpdateSubmissionResult(ctx context.Context, id, status string, accepted, rejected int) error {
	query := `
		UPDATE feed_submissions SET status = $2, accepted = $3, rejected = $4, updated_at = $5
		WHERE id = $1
	`

	if _, err := s.pool.Exec(ctx, query, id, status, accepted, rejected, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update feed submission %s: %w", id, err)
	}
	return nil
}

// ListSubmissions returns the latest submissions for a store.
func (s *CatalogStorage) ListSubmissions(ctx context.Context, storeID string, limit int) ([]*models.FeedSubmission, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, store_id, feed_id, type, payload, item_count, accepted, rejected,
			status, created_at, updated_at
		FROM feed_submissions
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.FeedSubmission
	for rows.Next() {
		var sub models.FeedSubmission
		err := rows.Scan(&sub.ID, &sub.StoreID, &sub.FeedID, &sub.Type, &sub.Payload,
			&sub.ItemCount, &sub.Accepted, &sub.Rejected, &sub.Status,
			&sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed submission row: %w", err)
		}
		subs = append(subs, &sub)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating feed submission rows: %w", rows.Err())
	}

	return subs, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockgrid/listing-engine/internal/model"
)

// querier is the subset of pgx operations shared by *pgxpool.Pool and
// pgx.Tx, so the same statements run on either.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool // nil inside a transaction
	db   querier
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// InitSchema creates the tables if they do not exist. Listings carry no
// surrogate key: the (exchange_id, stock_id) pair is the primary key and
// the store enforces uniqueness on it.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stocks (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			description   TEXT NOT NULL DEFAULT '',
			current_price NUMERIC NOT NULL,
			version       BIGINT NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS exchanges (
			id             BIGSERIAL PRIMARY KEY,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			live_in_market BOOLEAN NOT NULL DEFAULT FALSE,
			version        BIGINT NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS listings (
			exchange_id BIGINT NOT NULL REFERENCES exchanges(id),
			stock_id    BIGINT NOT NULL REFERENCES stocks(id),
			PRIMARY KEY (exchange_id, stock_id)
		);
		CREATE INDEX IF NOT EXISTS idx_listings_stock ON listings (stock_id);
	`)
	return err
}

// InTx begins a transaction and runs fn against a transactional store.
// Nested calls reuse the enclosing transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// limitClause renders LIMIT/OFFSET; limit <= 0 means no limit.
func limitClause(limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

// --- Stock operations ---

func (s *PostgresStore) CreateStock(ctx context.Context, st *model.Stock) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO stocks (name, description, current_price)
		 VALUES ($1, $2, $3::NUMERIC)
		 RETURNING id, version`,
		st.Name, st.Description, st.CurrentPrice.String(),
	).Scan(&st.ID, &st.Version)
	if isUniqueViolation(err) {
		return fmt.Errorf("stock name %q: %w", st.Name, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetStock(ctx context.Context, id int64) (*model.Stock, error) {
	var st model.Stock
	var price string

	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, current_price::TEXT, version
		 FROM stocks WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.Description, &price, &st.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("stock %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock %d: %w", id, err)
	}

	st.CurrentPrice, _ = decimal.NewFromString(price)
	return &st, nil
}

func (s *PostgresStore) GetStocksByIDs(ctx context.Context, ids []int64) (map[int64]model.Stock, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, current_price::TEXT, version
		 FROM stocks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]model.Stock, len(ids))
	for rows.Next() {
		var st model.Stock
		var price string
		if err := rows.Scan(&st.ID, &st.Name, &st.Description, &price, &st.Version); err != nil {
			return nil, err
		}
		st.CurrentPrice, _ = decimal.NewFromString(price)
		found[st.ID] = st
	}
	return found, rows.Err()
}

func (s *PostgresStore) ExistsStock(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ExistsStockName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stocks WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) SaveStock(ctx context.Context, st *model.Stock) error {
	err := s.db.QueryRow(ctx,
		`UPDATE stocks
		 SET name = $2, description = $3, current_price = $4::NUMERIC, version = version + 1
		 WHERE id = $1 AND version = $5
		 RETURNING version`,
		st.ID, st.Name, st.Description, st.CurrentPrice.String(), st.Version,
	).Scan(&st.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.staleOrMissing(ctx, "stock", st.ID, s.ExistsStock)
	}
	return err
}

func (s *PostgresStore) ListStocks(ctx context.Context, limit, offset int) ([]model.Stock, error) {
	return s.queryStocks(ctx,
		`SELECT id, name, description, current_price::TEXT, version
		 FROM stocks ORDER BY id`+limitClause(limit, offset))
}

func (s *PostgresStore) DeleteStock(ctx context.Context, id int64) error {
	// Explicit cascade: dependent listings first, then the stock itself.
	// The engine wraps this in InTx so both deletes commit atomically.
	if _, err := s.db.Exec(ctx,
		`DELETE FROM listings WHERE stock_id = $1`, id); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM stocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Exchange operations ---

func (s *PostgresStore) CreateExchange(ctx context.Context, ex *model.Exchange) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO exchanges (name, description, live_in_market)
		 VALUES ($1, $2, $3)
		 RETURNING id, version`,
		ex.Name, ex.Description, ex.LiveInMarket,
	).Scan(&ex.ID, &ex.Version)
}

func (s *PostgresStore) GetExchange(ctx context.Context, id int64) (*model.Exchange, error) {
	var ex model.Exchange
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, live_in_market, version
		 FROM exchanges WHERE id = $1`, id).
		Scan(&ex.ID, &ex.Name, &ex.Description, &ex.LiveInMarket, &ex.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("exchange %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange %d: %w", id, err)
	}
	return &ex, nil
}

func (s *PostgresStore) ExistsExchange(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exchanges WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) SaveExchange(ctx context.Context, ex *model.Exchange) error {
	err := s.db.QueryRow(ctx,
		`UPDATE exchanges
		 SET name = $2, description = $3, live_in_market = $4, version = version + 1
		 WHERE id = $1 AND version = $5
		 RETURNING version`,
		ex.ID, ex.Name, ex.Description, ex.LiveInMarket, ex.Version,
	).Scan(&ex.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.staleOrMissing(ctx, "exchange", ex.ID, s.ExistsExchange)
	}
	return err
}

func (s *PostgresStore) ListExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return s.queryExchanges(ctx,
		`SELECT id, name, description, live_in_market, version
		 FROM exchanges ORDER BY id`+limitClause(limit, offset))
}

func (s *PostgresStore) ListLiveExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return s.queryExchanges(ctx,
		`SELECT id, name, description, live_in_market, version
		 FROM exchanges WHERE live_in_market ORDER BY id`+limitClause(limit, offset))
}

func (s *PostgresStore) DeleteExchange(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM listings WHERE exchange_id = $1`, id); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM exchanges WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exchange %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Listing operations ---

func (s *PostgresStore) CreateListing(ctx context.Context, l model.Listing) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO listings (exchange_id, stock_id) VALUES ($1, $2)`,
		l.ExchangeID, l.StockID)
	if isUniqueViolation(err) {
		return fmt.Errorf("listing (%d, %d): %w", l.ExchangeID, l.StockID, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) CreateListingsBatch(ctx context.Context, ls []model.Listing) error {
	if len(ls) == 0 {
		return nil
	}
	exchangeIDs := make([]int64, len(ls))
	stockIDs := make([]int64, len(ls))
	for i, l := range ls {
		exchangeIDs[i] = l.ExchangeID
		stockIDs[i] = l.StockID
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO listings (exchange_id, stock_id)
		 SELECT * FROM unnest($1::BIGINT[], $2::BIGINT[])`,
		exchangeIDs, stockIDs)
	if isUniqueViolation(err) {
		return fmt.Errorf("listings batch: %w", ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) ExistsListing(ctx context.Context, key model.ListingKey) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE exchange_id = $1 AND stock_id = $2)`,
		key.ExchangeID, key.StockID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) GetListingsByKeys(ctx context.Context, exchangeID int64, stockIDs []int64) (map[int64]model.Listing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT exchange_id, stock_id FROM listings
		 WHERE exchange_id = $1 AND stock_id = ANY($2)`, exchangeID, stockIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]model.Listing, len(stockIDs))
	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(&l.ExchangeID, &l.StockID); err != nil {
			return nil, err
		}
		found[l.StockID] = l
	}
	return found, rows.Err()
}

func (s *PostgresStore) CountListings(ctx context.Context, exchangeID int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE exchange_id = $1`, exchangeID).Scan(&count)
	return count, err
}

func (s *PostgresStore) DeleteListing(ctx context.Context, key model.ListingKey) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM listings WHERE exchange_id = $1 AND stock_id = $2`,
		key.ExchangeID, key.StockID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing (%d, %d): %w", key.ExchangeID, key.StockID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteListingsBatch(ctx context.Context, keys []model.ListingKey) error {
	if len(keys) == 0 {
		return nil
	}
	exchangeIDs := make([]int64, len(keys))
	stockIDs := make([]int64, len(keys))
	for i, k := range keys {
		exchangeIDs[i] = k.ExchangeID
		stockIDs[i] = k.StockID
	}
	_, err := s.db.Exec(ctx,
		`DELETE FROM listings
		 WHERE (exchange_id, stock_id) IN
		       (SELECT * FROM unnest($1::BIGINT[], $2::BIGINT[]))`,
		exchangeIDs, stockIDs)
	return err
}

// --- Association queries ---

func (s *PostgresStore) GetStocksByExchange(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	return s.queryStocks(ctx,
		`SELECT st.id, st.name, st.description, st.current_price::TEXT, st.version
		 FROM listings l JOIN stocks st ON st.id = l.stock_id
		 WHERE l.exchange_id = $1 ORDER BY st.id`+limitClause(limit, offset),
		exchangeID)
}

func (s *PostgresStore) GetExchangesByStock(ctx context.Context, stockID int64) ([]model.Exchange, error) {
	return s.queryExchanges(ctx,
		`SELECT ex.id, ex.name, ex.description, ex.live_in_market, ex.version
		 FROM listings l JOIN exchanges ex ON ex.id = l.exchange_id
		 WHERE l.stock_id = $1 ORDER BY ex.id`,
		stockID)
}

func (s *PostgresStore) GetStocksNotListed(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	return s.queryStocks(ctx,
		`SELECT st.id, st.name, st.description, st.current_price::TEXT, st.version
		 FROM stocks st
		 WHERE NOT EXISTS (
			SELECT 1 FROM listings l
			WHERE l.stock_id = st.id AND l.exchange_id = $1
		 )
		 ORDER BY st.id`+limitClause(limit, offset),
		exchangeID)
}

// --- Helpers ---

func (s *PostgresStore) queryStocks(ctx context.Context, sql string, args ...any) ([]model.Stock, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks []model.Stock
	for rows.Next() {
		var st model.Stock
		var price string
		if err := rows.Scan(&st.ID, &st.Name, &st.Description, &price, &st.Version); err != nil {
			return nil, err
		}
		st.CurrentPrice, _ = decimal.NewFromString(price)
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

func (s *PostgresStore) queryExchanges(ctx context.Context, sql string, args ...any) ([]model.Exchange, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exchanges []model.Exchange
	for rows.Next() {
		var ex model.Exchange
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.LiveInMarket, &ex.Version); err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// staleOrMissing distinguishes a failed version check from a missing row
// after an UPDATE matched nothing.
func (s *PostgresStore) staleOrMissing(ctx context.Context, kind string, id int64, exists func(context.Context, int64) (bool, error)) error {
	ok, err := exists(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s %d: %w", kind, id, ErrStaleWrite)
	}
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

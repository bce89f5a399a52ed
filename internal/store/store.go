// Package store defines the persistence interface for the listing engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/stockgrid/listing-engine/internal/model"
)

// Sentinel errors shared by all implementations. Callers match with
// errors.Is and attach domain context themselves.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint would be
	// violated (listing composite key, stock name).
	ErrDuplicate = errors.New("duplicate")

	// ErrStaleWrite is returned by version-checked saves when the row's
	// persisted version no longer matches the caller's copy.
	ErrStaleWrite = errors.New("stale write")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// List queries take limit/offset; limit <= 0 means no limit.
type Store interface {
	// --- Transactions ---

	// InTx runs fn against a transactional view of the store. All reads and
	// writes inside fn commit atomically; any error from fn rolls the whole
	// transaction back. Nested calls reuse the enclosing transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// --- Stock operations ---

	// CreateStock persists a new stock and assigns its ID and version.
	CreateStock(ctx context.Context, s *model.Stock) error

	// GetStock retrieves a stock by ID.
	GetStock(ctx context.Context, id int64) (*model.Stock, error)

	// GetStocksByIDs bulk-fetches stocks; the result contains only the
	// subset actually found, keyed by stock ID.
	GetStocksByIDs(ctx context.Context, ids []int64) (map[int64]model.Stock, error)

	// ExistsStock reports whether a stock with the given ID exists.
	ExistsStock(ctx context.Context, id int64) (bool, error)

	// ExistsStockName reports whether a stock with the given name exists.
	ExistsStockName(ctx context.Context, name string) (bool, error)

	// SaveStock performs a version-checked update. Returns ErrStaleWrite if
	// the persisted version differs; on success the version is incremented
	// both in the row and in s.
	SaveStock(ctx context.Context, s *model.Stock) error

	// ListStocks returns stocks ordered by ID.
	ListStocks(ctx context.Context, limit, offset int) ([]model.Stock, error)

	// DeleteStock removes a stock and cascade-deletes its listings.
	DeleteStock(ctx context.Context, id int64) error

	// --- Exchange operations ---

	// CreateExchange persists a new exchange and assigns its ID and version.
	CreateExchange(ctx context.Context, ex *model.Exchange) error

	// GetExchange retrieves an exchange by ID.
	GetExchange(ctx context.Context, id int64) (*model.Exchange, error)

	// ExistsExchange reports whether an exchange with the given ID exists.
	ExistsExchange(ctx context.Context, id int64) (bool, error)

	// SaveExchange performs a version-checked update, like SaveStock.
	SaveExchange(ctx context.Context, ex *model.Exchange) error

	// ListExchanges returns exchanges ordered by ID.
	ListExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error)

	// ListLiveExchanges returns exchanges whose live flag is set.
	ListLiveExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error)

	// DeleteExchange removes an exchange and cascade-deletes its listings.
	DeleteExchange(ctx context.Context, id int64) error

	// --- Listing operations ---

	// CreateListing persists a new listing. Returns ErrDuplicate if the
	// composite key already exists.
	CreateListing(ctx context.Context, l model.Listing) error

	// CreateListingsBatch persists all listings in one write.
	CreateListingsBatch(ctx context.Context, ls []model.Listing) error

	// ExistsListing reports whether the (exchange, stock) pair is listed.
	ExistsListing(ctx context.Context, key model.ListingKey) (bool, error)

	// GetListingsByKeys returns the subset of listings that exist for the
	// requested stock IDs on one exchange, keyed by stock ID.
	GetListingsByKeys(ctx context.Context, exchangeID int64, stockIDs []int64) (map[int64]model.Listing, error)

	// CountListings returns the number of listings on an exchange.
	CountListings(ctx context.Context, exchangeID int64) (int64, error)

	// DeleteListing removes a single listing by composite key.
	DeleteListing(ctx context.Context, key model.ListingKey) error

	// DeleteListingsBatch removes all given listings in one operation.
	DeleteListingsBatch(ctx context.Context, keys []model.ListingKey) error

	// --- Association queries ---

	// GetStocksByExchange returns the stocks listed on an exchange.
	GetStocksByExchange(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error)

	// GetExchangesByStock returns the distinct exchanges a stock is listed
	// on. Distinct by construction: the composite key admits at most one
	// listing per pair.
	GetExchangesByStock(ctx context.Context, stockID int64) ([]model.Exchange, error)

	// GetStocksNotListed returns the set-complement of stocks relative to
	// an exchange's current listings.
	GetStocksNotListed(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error)
}

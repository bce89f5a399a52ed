package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockgrid/listing-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for single-row stock and exchange lookups. Writes go to the primary
// store and invalidate the cache; reads check Redis first then fall back to
// the primary. Inside a transaction all reads bypass the cache so the
// engine always validates against transactional state, never a cached copy.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	inTx    bool
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// InTx delegates to the primary store's transaction, handing fn a cache
// wrapper whose reads bypass Redis. Invalidation inside the transaction is
// best effort; the TTL bounds any staleness from a later rollback.
func (s *CachedStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.primary.InTx(ctx, func(tx Store) error {
		return fn(&CachedStore{primary: tx, rdb: s.rdb, ttl: s.ttl, inTx: true})
	})
}

func stockKey(id int64) string    { return fmt.Sprintf("stock:%d", id) }
func exchangeKey(id int64) string { return fmt.Sprintf("exchange:%d", id) }

// --- Read-through (check cache first) ---

func (s *CachedStore) GetStock(ctx context.Context, id int64) (*model.Stock, error) {
	if !s.inTx {
		data, err := s.rdb.Get(ctx, stockKey(id)).Bytes()
		if err == nil {
			var st model.Stock
			if json.Unmarshal(data, &st) == nil {
				return &st, nil
			}
		}
	}

	st, err := s.primary.GetStock(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheStock(ctx, st)
	return st, nil
}

func (s *CachedStore) GetExchange(ctx context.Context, id int64) (*model.Exchange, error) {
	if !s.inTx {
		data, err := s.rdb.Get(ctx, exchangeKey(id)).Bytes()
		if err == nil {
			var ex model.Exchange
			if json.Unmarshal(data, &ex) == nil {
				return &ex, nil
			}
		}
	}

	ex, err := s.primary.GetExchange(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheExchange(ctx, ex)
	return ex, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SaveStock(ctx context.Context, st *model.Stock) error {
	if err := s.primary.SaveStock(ctx, st); err != nil {
		return err
	}
	s.rdb.Del(ctx, stockKey(st.ID))
	return nil
}

func (s *CachedStore) DeleteStock(ctx context.Context, id int64) error {
	if err := s.primary.DeleteStock(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, stockKey(id))
	return nil
}

func (s *CachedStore) SaveExchange(ctx context.Context, ex *model.Exchange) error {
	if err := s.primary.SaveExchange(ctx, ex); err != nil {
		return err
	}
	s.rdb.Del(ctx, exchangeKey(ex.ID))
	return nil
}

func (s *CachedStore) DeleteExchange(ctx context.Context, id int64) error {
	if err := s.primary.DeleteExchange(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, exchangeKey(id))
	return nil
}

// --- Passthrough ---

func (s *CachedStore) CreateStock(ctx context.Context, st *model.Stock) error {
	if err := s.primary.CreateStock(ctx, st); err != nil {
		return err
	}
	s.cacheStock(ctx, st)
	return nil
}

func (s *CachedStore) CreateExchange(ctx context.Context, ex *model.Exchange) error {
	if err := s.primary.CreateExchange(ctx, ex); err != nil {
		return err
	}
	s.cacheExchange(ctx, ex)
	return nil
}

func (s *CachedStore) GetStocksByIDs(ctx context.Context, ids []int64) (map[int64]model.Stock, error) {
	return s.primary.GetStocksByIDs(ctx, ids)
}

func (s *CachedStore) ExistsStock(ctx context.Context, id int64) (bool, error) {
	return s.primary.ExistsStock(ctx, id)
}

func (s *CachedStore) ExistsStockName(ctx context.Context, name string) (bool, error) {
	return s.primary.ExistsStockName(ctx, name)
}

func (s *CachedStore) ListStocks(ctx context.Context, limit, offset int) ([]model.Stock, error) {
	return s.primary.ListStocks(ctx, limit, offset)
}

func (s *CachedStore) ExistsExchange(ctx context.Context, id int64) (bool, error) {
	return s.primary.ExistsExchange(ctx, id)
}

func (s *CachedStore) ListExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return s.primary.ListExchanges(ctx, limit, offset)
}

func (s *CachedStore) ListLiveExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return s.primary.ListLiveExchanges(ctx, limit, offset)
}

func (s *CachedStore) CreateListing(ctx context.Context, l model.Listing) error {
	return s.primary.CreateListing(ctx, l)
}

func (s *CachedStore) CreateListingsBatch(ctx context.Context, ls []model.Listing) error {
	return s.primary.CreateListingsBatch(ctx, ls)
}

func (s *CachedStore) ExistsListing(ctx context.Context, key model.ListingKey) (bool, error) {
	return s.primary.ExistsListing(ctx, key)
}

func (s *CachedStore) GetListingsByKeys(ctx context.Context, exchangeID int64, stockIDs []int64) (map[int64]model.Listing, error) {
	return s.primary.GetListingsByKeys(ctx, exchangeID, stockIDs)
}

func (s *CachedStore) CountListings(ctx context.Context, exchangeID int64) (int64, error) {
	return s.primary.CountListings(ctx, exchangeID)
}

func (s *CachedStore) DeleteListing(ctx context.Context, key model.ListingKey) error {
	return s.primary.DeleteListing(ctx, key)
}

func (s *CachedStore) DeleteListingsBatch(ctx context.Context, keys []model.ListingKey) error {
	return s.primary.DeleteListingsBatch(ctx, keys)
}

func (s *CachedStore) GetStocksByExchange(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	return s.primary.GetStocksByExchange(ctx, exchangeID, limit, offset)
}

func (s *CachedStore) GetExchangesByStock(ctx context.Context, stockID int64) ([]model.Exchange, error) {
	return s.primary.GetExchangesByStock(ctx, stockID)
}

func (s *CachedStore) GetStocksNotListed(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	return s.primary.GetStocksNotListed(ctx, exchangeID, limit, offset)
}

// --- Cache helpers ---

func (s *CachedStore) cacheStock(ctx context.Context, st *model.Stock) {
	if s.inTx {
		return // uncommitted state must never reach the cache
	}
	if data, err := json.Marshal(st); err == nil {
		s.rdb.Set(ctx, stockKey(st.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheExchange(ctx context.Context, ex *model.Exchange) {
	if s.inTx {
		return
	}
	if data, err := json.Marshal(ex); err == nil {
		s.rdb.Set(ctx, exchangeKey(ex.ID), data, s.ttl)
	}
}

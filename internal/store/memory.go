package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stockgrid/listing-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
	tx   bool // transactional view: lock already held by InTx
}

type memData struct {
	stocks         map[int64]model.Stock
	exchanges      map[int64]model.Exchange
	listings       map[model.ListingKey]model.Listing
	nextStockID    int64
	nextExchangeID int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			stocks:    make(map[int64]model.Stock),
			exchanges: make(map[int64]model.Exchange),
			listings:  make(map[model.ListingKey]model.Listing),
		},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		stocks:         make(map[int64]model.Stock, len(d.stocks)),
		exchanges:      make(map[int64]model.Exchange, len(d.exchanges)),
		listings:       make(map[model.ListingKey]model.Listing, len(d.listings)),
		nextStockID:    d.nextStockID,
		nextExchangeID: d.nextExchangeID,
	}
	for id, s := range d.stocks {
		c.stocks[id] = s
	}
	for id, ex := range d.exchanges {
		c.exchanges[id] = ex
	}
	for k, l := range d.listings {
		c.listings[k] = l
	}
	return c
}

// InTx clones the current state, runs fn against the clone, and swaps it in
// only if fn succeeds. An error from fn discards the clone, so a failed
// transaction leaves the store byte-for-byte unchanged.
func (s *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txData := s.data.clone()
	txStore := &MemoryStore{data: txData, tx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	s.data = txData
	return nil
}

func (s *MemoryStore) rlock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- Stock operations ---

func (s *MemoryStore) CreateStock(_ context.Context, st *model.Stock) error {
	defer s.lock()()

	for _, existing := range s.data.stocks {
		if existing.Name == st.Name {
			return fmt.Errorf("stock name %q: %w", st.Name, ErrDuplicate)
		}
	}

	s.data.nextStockID++
	st.ID = s.data.nextStockID
	st.Version = 1
	s.data.stocks[st.ID] = *st
	return nil
}

func (s *MemoryStore) GetStock(_ context.Context, id int64) (*model.Stock, error) {
	defer s.rlock()()

	st, ok := s.data.stocks[id]
	if !ok {
		return nil, fmt.Errorf("stock %d: %w", id, ErrNotFound)
	}
	return &st, nil
}

func (s *MemoryStore) GetStocksByIDs(_ context.Context, ids []int64) (map[int64]model.Stock, error) {
	defer s.rlock()()

	found := make(map[int64]model.Stock, len(ids))
	for _, id := range ids {
		if st, ok := s.data.stocks[id]; ok {
			found[id] = st
		}
	}
	return found, nil
}

func (s *MemoryStore) ExistsStock(_ context.Context, id int64) (bool, error) {
	defer s.rlock()()

	_, ok := s.data.stocks[id]
	return ok, nil
}

func (s *MemoryStore) ExistsStockName(_ context.Context, name string) (bool, error) {
	defer s.rlock()()

	for _, st := range s.data.stocks {
		if st.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SaveStock(_ context.Context, st *model.Stock) error {
	defer s.lock()()

	current, ok := s.data.stocks[st.ID]
	if !ok {
		return fmt.Errorf("stock %d: %w", st.ID, ErrNotFound)
	}
	if current.Version != st.Version {
		return fmt.Errorf("stock %d: %w", st.ID, ErrStaleWrite)
	}
	st.Version++
	s.data.stocks[st.ID] = *st
	return nil
}

func (s *MemoryStore) ListStocks(_ context.Context, limit, offset int) ([]model.Stock, error) {
	defer s.rlock()()

	stocks := make([]model.Stock, 0, len(s.data.stocks))
	for _, st := range s.data.stocks {
		stocks = append(stocks, st)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].ID < stocks[j].ID })
	return page(stocks, limit, offset), nil
}

func (s *MemoryStore) DeleteStock(_ context.Context, id int64) error {
	defer s.lock()()

	if _, ok := s.data.stocks[id]; !ok {
		return fmt.Errorf("stock %d: %w", id, ErrNotFound)
	}
	delete(s.data.stocks, id)
	for k := range s.data.listings {
		if k.StockID == id {
			delete(s.data.listings, k)
		}
	}
	return nil
}

// --- Exchange operations ---

func (s *MemoryStore) CreateExchange(_ context.Context, ex *model.Exchange) error {
	defer s.lock()()

	s.data.nextExchangeID++
	ex.ID = s.data.nextExchangeID
	ex.Version = 1
	s.data.exchanges[ex.ID] = *ex
	return nil
}

func (s *MemoryStore) GetExchange(_ context.Context, id int64) (*model.Exchange, error) {
	defer s.rlock()()

	ex, ok := s.data.exchanges[id]
	if !ok {
		return nil, fmt.Errorf("exchange %d: %w", id, ErrNotFound)
	}
	return &ex, nil
}

func (s *MemoryStore) ExistsExchange(_ context.Context, id int64) (bool, error) {
	defer s.rlock()()

	_, ok := s.data.exchanges[id]
	return ok, nil
}

func (s *MemoryStore) SaveExchange(_ context.Context, ex *model.Exchange) error {
	defer s.lock()()

	current, ok := s.data.exchanges[ex.ID]
	if !ok {
		return fmt.Errorf("exchange %d: %w", ex.ID, ErrNotFound)
	}
	if current.Version != ex.Version {
		return fmt.Errorf("exchange %d: %w", ex.ID, ErrStaleWrite)
	}
	ex.Version++
	s.data.exchanges[ex.ID] = *ex
	return nil
}

func (s *MemoryStore) ListExchanges(_ context.Context, limit, offset int) ([]model.Exchange, error) {
	defer s.rlock()()

	return page(s.sortedExchanges(func(model.Exchange) bool { return true }), limit, offset), nil
}

func (s *MemoryStore) ListLiveExchanges(_ context.Context, limit, offset int) ([]model.Exchange, error) {
	defer s.rlock()()

	return page(s.sortedExchanges(func(ex model.Exchange) bool { return ex.LiveInMarket }), limit, offset), nil
}

func (s *MemoryStore) sortedExchanges(keep func(model.Exchange) bool) []model.Exchange {
	var exchanges []model.Exchange
	for _, ex := range s.data.exchanges {
		if keep(ex) {
			exchanges = append(exchanges, ex)
		}
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].ID < exchanges[j].ID })
	return exchanges
}

func (s *MemoryStore) DeleteExchange(_ context.Context, id int64) error {
	defer s.lock()()

	if _, ok := s.data.exchanges[id]; !ok {
		return fmt.Errorf("exchange %d: %w", id, ErrNotFound)
	}
	delete(s.data.exchanges, id)
	for k := range s.data.listings {
		if k.ExchangeID == id {
			delete(s.data.listings, k)
		}
	}
	return nil
}

// --- Listing operations ---

func (s *MemoryStore) CreateListing(_ context.Context, l model.Listing) error {
	defer s.lock()()

	if _, ok := s.data.listings[l.Key()]; ok {
		return fmt.Errorf("listing (%d, %d): %w", l.ExchangeID, l.StockID, ErrDuplicate)
	}
	s.data.listings[l.Key()] = l
	return nil
}

func (s *MemoryStore) CreateListingsBatch(_ context.Context, ls []model.Listing) error {
	defer s.lock()()

	for _, l := range ls {
		if _, ok := s.data.listings[l.Key()]; ok {
			return fmt.Errorf("listing (%d, %d): %w", l.ExchangeID, l.StockID, ErrDuplicate)
		}
	}
	for _, l := range ls {
		s.data.listings[l.Key()] = l
	}
	return nil
}

func (s *MemoryStore) ExistsListing(_ context.Context, key model.ListingKey) (bool, error) {
	defer s.rlock()()

	_, ok := s.data.listings[key]
	return ok, nil
}

func (s *MemoryStore) GetListingsByKeys(_ context.Context, exchangeID int64, stockIDs []int64) (map[int64]model.Listing, error) {
	defer s.rlock()()

	found := make(map[int64]model.Listing, len(stockIDs))
	for _, stockID := range stockIDs {
		key := model.ListingKey{ExchangeID: exchangeID, StockID: stockID}
		if l, ok := s.data.listings[key]; ok {
			found[stockID] = l
		}
	}
	return found, nil
}

func (s *MemoryStore) CountListings(_ context.Context, exchangeID int64) (int64, error) {
	defer s.rlock()()

	var count int64
	for k := range s.data.listings {
		if k.ExchangeID == exchangeID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteListing(_ context.Context, key model.ListingKey) error {
	defer s.lock()()

	if _, ok := s.data.listings[key]; !ok {
		return fmt.Errorf("listing (%d, %d): %w", key.ExchangeID, key.StockID, ErrNotFound)
	}
	delete(s.data.listings, key)
	return nil
}

func (s *MemoryStore) DeleteListingsBatch(_ context.Context, keys []model.ListingKey) error {
	defer s.lock()()

	for _, key := range keys {
		delete(s.data.listings, key)
	}
	return nil
}

// --- Association queries ---

func (s *MemoryStore) GetStocksByExchange(_ context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	defer s.rlock()()

	var stocks []model.Stock
	for k := range s.data.listings {
		if k.ExchangeID != exchangeID {
			continue
		}
		if st, ok := s.data.stocks[k.StockID]; ok {
			stocks = append(stocks, st)
		}
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].ID < stocks[j].ID })
	return page(stocks, limit, offset), nil
}

func (s *MemoryStore) GetExchangesByStock(_ context.Context, stockID int64) ([]model.Exchange, error) {
	defer s.rlock()()

	var exchanges []model.Exchange
	for k := range s.data.listings {
		if k.StockID != stockID {
			continue
		}
		if ex, ok := s.data.exchanges[k.ExchangeID]; ok {
			exchanges = append(exchanges, ex)
		}
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].ID < exchanges[j].ID })
	return exchanges, nil
}

func (s *MemoryStore) GetStocksNotListed(_ context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	defer s.rlock()()

	listed := make(map[int64]bool)
	for k := range s.data.listings {
		if k.ExchangeID == exchangeID {
			listed[k.StockID] = true
		}
	}

	var stocks []model.Stock
	for id, st := range s.data.stocks {
		if !listed[id] {
			stocks = append(stocks, st)
		}
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].ID < stocks[j].ID })
	return page(stocks, limit, offset), nil
}

// page applies limit/offset to an already-ordered slice. limit <= 0 means
// no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

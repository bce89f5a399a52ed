// Package engine implements the listing consistency engine: the single and
// batch listing operations between stocks and exchanges, the cascade delete
// semantics, and the derived live-in-market invariant. Every mutating
// operation runs inside one store transaction — fetch, validate, write, and
// recompute commit atomically, so the live flag always reflects the last
// committed listing count.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stockgrid/listing-engine/internal/metrics"
	"github.com/stockgrid/listing-engine/internal/model"
	"github.com/stockgrid/listing-engine/internal/store"
)

// LiveThreshold is the listing count at which an exchange goes live in the
// market.
const LiveThreshold = 10

// Notifier receives post-commit notifications about listing changes and
// live status transitions. Implementations must not block.
type Notifier interface {
	ListingsChanged(exchangeID int64, stockIDs []int64, added bool)
	LiveStatusChanged(ex model.Exchange)
}

// Engine orchestrates listing mutations against the store. It talks only to
// the store; HTTP concerns live upstream.
type Engine struct {
	store    store.Store
	notifier Notifier // optional
}

// New creates an engine. Pass nil for notifier if event broadcasting is not
// needed.
func New(st store.Store, notifier Notifier) *Engine {
	return &Engine{store: st, notifier: notifier}
}

// AddListing lists one stock on one exchange and recomputes the exchange's
// live status in the same transaction. Returns the exchange (with its
// recomputed flag) together with the listed stock.
func (e *Engine) AddListing(ctx context.Context, exchangeID, stockID int64) (*model.ListingDetail, error) {
	var detail model.ListingDetail
	var flipped *model.Exchange

	err := e.store.InTx(ctx, func(tx store.Store) error {
		ex, err := fetchExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		st, err := fetchStock(ctx, tx, stockID)
		if err != nil {
			return err
		}

		key := model.ListingKey{ExchangeID: exchangeID, StockID: stockID}
		exists, err := tx.ExistsListing(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Kind: KindListing, IDs: []int64{stockID}}
		}

		if err := tx.CreateListing(ctx, model.Listing{ExchangeID: exchangeID, StockID: stockID}); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &ConflictError{Kind: KindListing, IDs: []int64{stockID}}
			}
			return err
		}

		changed, err := e.recomputeLiveStatus(ctx, tx, ex)
		if err != nil {
			return err
		}
		if changed {
			flipped = ex
		}
		detail = model.ListingDetail{Exchange: *ex, Stock: *st}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ListingsAdded.Inc()
	slog.Info("listing added",
		"exchange_id", exchangeID,
		"stock_id", stockID,
		"live_in_market", detail.Exchange.LiveInMarket,
	)
	e.notifyListings(exchangeID, []int64{stockID}, true)
	e.notifyFlip(flipped)
	return &detail, nil
}

// AddListingsBatch lists a set of stocks on one exchange, all-or-nothing.
// Any validation failure — a missing stock or an already-listed one —
// leaves the listing set and the live flag completely unchanged.
func (e *Engine) AddListingsBatch(ctx context.Context, exchangeID int64, stockIDs []int64) ([]model.ListingDetail, error) {
	if len(stockIDs) == 0 {
		return nil, &InvalidArgumentError{Reason: "stock ids list cannot be empty"}
	}
	ids := dedupe(stockIDs)

	var details []model.ListingDetail
	var flipped *model.Exchange

	err := e.store.InTx(ctx, func(tx store.Store) error {
		ex, err := fetchExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}

		stocks, err := tx.GetStocksByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if missing := missingIDs(ids, stocks); len(missing) > 0 {
			return &NotFoundError{Kind: KindStock, IDs: missing}
		}

		existing, err := tx.GetListingsByKeys(ctx, exchangeID, ids)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &ConflictError{Kind: KindListing, IDs: presentIDs(ids, existing)}
		}

		listings := make([]model.Listing, len(ids))
		for i, id := range ids {
			listings[i] = model.Listing{ExchangeID: exchangeID, StockID: id}
		}
		if err := tx.CreateListingsBatch(ctx, listings); err != nil {
			return err
		}

		changed, err := e.recomputeLiveStatus(ctx, tx, ex)
		if err != nil {
			return err
		}
		if changed {
			flipped = ex
		}

		details = make([]model.ListingDetail, len(ids))
		for i, id := range ids {
			details[i] = model.ListingDetail{Exchange: *ex, Stock: stocks[id]}
		}
		return nil
	})
	if err != nil {
		return nil, rejectBatch("add", err)
	}

	metrics.ListingsAdded.Add(float64(len(ids)))
	slog.Info("listings batch added",
		"exchange_id", exchangeID,
		"count", len(ids),
	)
	e.notifyListings(exchangeID, ids, true)
	e.notifyFlip(flipped)
	return details, nil
}

// RemoveListing delists one stock from one exchange and recomputes the
// exchange's live status in the same transaction.
func (e *Engine) RemoveListing(ctx context.Context, exchangeID, stockID int64) error {
	var flipped *model.Exchange

	err := e.store.InTx(ctx, func(tx store.Store) error {
		ex, err := fetchExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}

		key := model.ListingKey{ExchangeID: exchangeID, StockID: stockID}
		exists, err := tx.ExistsListing(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			return &NotFoundError{Kind: KindListing, IDs: []int64{stockID}}
		}
		if err := tx.DeleteListing(ctx, key); err != nil {
			return err
		}

		changed, err := e.recomputeLiveStatus(ctx, tx, ex)
		if err != nil {
			return err
		}
		if changed {
			flipped = ex
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ListingsRemoved.Inc()
	slog.Info("listing removed", "exchange_id", exchangeID, "stock_id", stockID)
	e.notifyListings(exchangeID, []int64{stockID}, false)
	e.notifyFlip(flipped)
	return nil
}

// RemoveListingsBatch delists a set of stocks from one exchange,
// all-or-nothing: if any requested stock is not listed, nothing is removed.
func (e *Engine) RemoveListingsBatch(ctx context.Context, exchangeID int64, stockIDs []int64) error {
	if len(stockIDs) == 0 {
		return &InvalidArgumentError{Reason: "stock ids list cannot be empty"}
	}
	ids := dedupe(stockIDs)

	var flipped *model.Exchange

	err := e.store.InTx(ctx, func(tx store.Store) error {
		ex, err := fetchExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}

		found, err := tx.GetListingsByKeys(ctx, exchangeID, ids)
		if err != nil {
			return err
		}
		if missing := missingIDs(ids, found); len(missing) > 0 {
			return &NotFoundError{Kind: KindListing, IDs: missing}
		}

		keys := make([]model.ListingKey, len(ids))
		for i, id := range ids {
			keys[i] = model.ListingKey{ExchangeID: exchangeID, StockID: id}
		}
		if err := tx.DeleteListingsBatch(ctx, keys); err != nil {
			return err
		}

		changed, err := e.recomputeLiveStatus(ctx, tx, ex)
		if err != nil {
			return err
		}
		if changed {
			flipped = ex
		}
		return nil
	})
	if err != nil {
		return rejectBatch("remove", err)
	}

	metrics.ListingsRemoved.Add(float64(len(ids)))
	slog.Info("listings batch removed",
		"exchange_id", exchangeID,
		"count", len(ids),
	)
	e.notifyListings(exchangeID, ids, false)
	e.notifyFlip(flipped)
	return nil
}

// StocksNotListed returns the set-complement of stocks relative to the
// exchange's current listings. Read-only, no invariant effect.
func (e *Engine) StocksNotListed(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	if err := e.requireExchange(ctx, exchangeID); err != nil {
		return nil, err
	}
	return e.store.GetStocksNotListed(ctx, exchangeID, limit, offset)
}

// recomputeLiveStatus re-derives the exchange's live flag from the current
// listing count. The flag is written only when it flips, so an unchanged
// count never bumps the version stamp. Must run inside the same transaction
// as the write that changed the count.
func (e *Engine) recomputeLiveStatus(ctx context.Context, tx store.Store, ex *model.Exchange) (bool, error) {
	count, err := tx.CountListings(ctx, ex.ID)
	if err != nil {
		return false, err
	}

	shouldBeLive := count >= LiveThreshold
	if ex.LiveInMarket == shouldBeLive {
		return false, nil
	}

	ex.LiveInMarket = shouldBeLive
	if err := tx.SaveExchange(ctx, ex); err != nil {
		return false, mapSaveErr(err, KindExchange, ex.ID)
	}
	return true, nil
}

// --- Fetch helpers mapping store sentinels to the engine taxonomy ---

func fetchExchange(ctx context.Context, tx store.Store, id int64) (*model.Exchange, error) {
	ex, err := tx.GetExchange(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: KindExchange, IDs: []int64{id}}
	}
	return ex, err
}

func fetchStock(ctx context.Context, tx store.Store, id int64) (*model.Stock, error) {
	st, err := tx.GetStock(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: KindStock, IDs: []int64{id}}
	}
	return st, err
}

func (e *Engine) requireExchange(ctx context.Context, id int64) error {
	exists, err := e.store.ExistsExchange(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Kind: KindExchange, IDs: []int64{id}}
	}
	return nil
}

func (e *Engine) requireStock(ctx context.Context, id int64) error {
	exists, err := e.store.ExistsStock(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Kind: KindStock, IDs: []int64{id}}
	}
	return nil
}

// --- Post-commit side channels ---

func (e *Engine) notifyListings(exchangeID int64, stockIDs []int64, added bool) {
	if e.notifier != nil {
		e.notifier.ListingsChanged(exchangeID, stockIDs, added)
	}
}

func (e *Engine) notifyFlip(ex *model.Exchange) {
	if ex == nil {
		return
	}
	direction := "down"
	if ex.LiveInMarket {
		direction = "up"
	}
	metrics.LiveTransitions.WithLabelValues(direction).Inc()
	slog.Info("live status changed",
		"exchange_id", ex.ID,
		"live_in_market", ex.LiveInMarket,
	)
	if e.notifier != nil {
		e.notifier.LiveStatusChanged(*ex)
	}
}

// rejectBatch records a rejected batch in metrics and passes the error on.
func rejectBatch(op string, err error) error {
	var nf *NotFoundError
	var conflict *ConflictError
	switch {
	case errors.As(err, &nf):
		metrics.BatchRejections.WithLabelValues(op, "not_found").Inc()
	case errors.As(err, &conflict):
		metrics.BatchRejections.WithLabelValues(op, "conflict").Inc()
	}
	return err
}

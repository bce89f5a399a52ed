package engine

import (
	"context"
	"log/slog"

	"github.com/stockgrid/listing-engine/internal/metrics"
	"github.com/stockgrid/listing-engine/internal/model"
	"github.com/stockgrid/listing-engine/internal/store"
)

// Cascade delete semantics. Deleting a stock or an exchange removes its
// dependent listings within the same transaction; deleting a stock also
// recomputes the live status of every exchange it was listed on, once per
// distinct exchange.

// DeleteStock removes a stock, cascade-deletes its listings, and recomputes
// live status for each affected exchange.
func (e *Engine) DeleteStock(ctx context.Context, stockID int64) error {
	var flips []model.Exchange
	var affected []model.Exchange

	err := e.store.InTx(ctx, func(tx store.Store) error {
		if _, err := fetchStock(ctx, tx, stockID); err != nil {
			return err
		}

		// Uniqueness of the composite key guarantees one listing per
		// exchange, so this set is already distinct by exchange id.
		var err error
		affected, err = tx.GetExchangesByStock(ctx, stockID)
		if err != nil {
			return err
		}

		if err := tx.DeleteStock(ctx, stockID); err != nil {
			return err
		}

		for i := range affected {
			ex := &affected[i]
			changed, err := e.recomputeLiveStatus(ctx, tx, ex)
			if err != nil {
				return err
			}
			if changed {
				flips = append(flips, *ex)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.StocksDeleted.Inc()
	slog.Info("stock deleted", "stock_id", stockID, "exchanges_recomputed", len(affected))
	for _, ex := range flips {
		ex := ex
		e.notifyFlip(&ex)
	}
	return nil
}

// DeleteExchange removes an exchange and cascade-deletes its listings. No
// recompute is necessary: the exchange itself is gone. Stocks are left
// untouched.
func (e *Engine) DeleteExchange(ctx context.Context, exchangeID int64) error {
	err := e.store.InTx(ctx, func(tx store.Store) error {
		if _, err := fetchExchange(ctx, tx, exchangeID); err != nil {
			return err
		}
		return tx.DeleteExchange(ctx, exchangeID)
	})
	if err != nil {
		return err
	}

	metrics.ExchangesDeleted.Inc()
	slog.Info("exchange deleted", "exchange_id", exchangeID)
	return nil
}

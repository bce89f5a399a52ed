package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockgrid/listing-engine/internal/model"
	"github.com/stockgrid/listing-engine/internal/store"
)

// CRUD operations for stocks and exchanges. Listing-count-changing
// operations live in engine.go; everything here either reads or mutates a
// single row.

// CreateStock registers a new stock. Names are unique and non-empty;
// prices must be positive.
func (e *Engine) CreateStock(ctx context.Context, name, description string, price decimal.Decimal) (*model.Stock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &InvalidArgumentError{Reason: "stock name cannot be empty"}
	}
	if !price.IsPositive() {
		return nil, &InvalidArgumentError{Reason: "current price must be positive"}
	}

	st := &model.Stock{Name: name, Description: description, CurrentPrice: price}
	err := e.store.InTx(ctx, func(tx store.Store) error {
		exists, err := tx.ExistsStockName(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Kind: KindStock, Name: name}
		}
		if err := tx.CreateStock(ctx, st); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &ConflictError{Kind: KindStock, Name: name}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock created", "stock_id", st.ID, "name", st.Name)
	return st, nil
}

// UpdateStockPrice updates only the price field, version-checked.
func (e *Engine) UpdateStockPrice(ctx context.Context, stockID int64, price decimal.Decimal) (*model.Stock, error) {
	if !price.IsPositive() {
		return nil, &InvalidArgumentError{Reason: "current price must be positive"}
	}

	var updated *model.Stock
	err := e.store.InTx(ctx, func(tx store.Store) error {
		st, err := fetchStock(ctx, tx, stockID)
		if err != nil {
			return err
		}
		st.CurrentPrice = price
		if err := tx.SaveStock(ctx, st); err != nil {
			return mapSaveErr(err, KindStock, stockID)
		}
		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("stock price updated", "stock_id", stockID, "price", price.String())
	return updated, nil
}

// GetStock retrieves one stock.
func (e *Engine) GetStock(ctx context.Context, stockID int64) (*model.Stock, error) {
	return fetchStock(ctx, e.store, stockID)
}

// ListStocks returns stocks ordered by id.
func (e *Engine) ListStocks(ctx context.Context, limit, offset int) ([]model.Stock, error) {
	return e.store.ListStocks(ctx, limit, offset)
}

// ExchangesForStock returns the exchanges a stock is listed on.
func (e *Engine) ExchangesForStock(ctx context.Context, stockID int64) ([]model.Exchange, error) {
	if err := e.requireStock(ctx, stockID); err != nil {
		return nil, err
	}
	return e.store.GetExchangesByStock(ctx, stockID)
}

// CreateExchange registers a new exchange. The live flag starts false and
// is only ever set by recomputation.
func (e *Engine) CreateExchange(ctx context.Context, name, description string) (*model.Exchange, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &InvalidArgumentError{Reason: "exchange name cannot be empty"}
	}

	ex := &model.Exchange{Name: name, Description: description}
	if err := e.store.CreateExchange(ctx, ex); err != nil {
		return nil, err
	}

	slog.Info("exchange created", "exchange_id", ex.ID, "name", ex.Name)
	return ex, nil
}

// UpdateExchange updates an exchange's name and description, version-checked.
// The live flag is derived and deliberately not settable here.
func (e *Engine) UpdateExchange(ctx context.Context, exchangeID int64, name, description string) (*model.Exchange, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &InvalidArgumentError{Reason: "exchange name cannot be empty"}
	}

	var updated *model.Exchange
	err := e.store.InTx(ctx, func(tx store.Store) error {
		ex, err := fetchExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		ex.Name = name
		ex.Description = description
		if err := tx.SaveExchange(ctx, ex); err != nil {
			return mapSaveErr(err, KindExchange, exchangeID)
		}
		updated = ex
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("exchange updated", "exchange_id", exchangeID)
	return updated, nil
}

// GetExchange retrieves one exchange.
func (e *Engine) GetExchange(ctx context.Context, exchangeID int64) (*model.Exchange, error) {
	return fetchExchange(ctx, e.store, exchangeID)
}

// ListExchanges returns exchanges ordered by id.
func (e *Engine) ListExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return e.store.ListExchanges(ctx, limit, offset)
}

// ListLiveExchanges returns only exchanges currently live in the market.
func (e *Engine) ListLiveExchanges(ctx context.Context, limit, offset int) ([]model.Exchange, error) {
	return e.store.ListLiveExchanges(ctx, limit, offset)
}

// StocksOnExchange returns the stocks listed on an exchange.
func (e *Engine) StocksOnExchange(ctx context.Context, exchangeID int64, limit, offset int) ([]model.Stock, error) {
	if err := e.requireExchange(ctx, exchangeID); err != nil {
		return nil, err
	}
	return e.store.GetStocksByExchange(ctx, exchangeID, limit, offset)
}

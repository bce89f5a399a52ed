package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stockgrid/listing-engine/internal/engine"
	"github.com/stockgrid/listing-engine/internal/model"
	"github.com/stockgrid/listing-engine/internal/store"
)

func TestCreateStock(t *testing.T) {
	eng, _ := newTestEngine(t)

	st, err := eng.CreateStock(context.Background(), "ACME", "widgets", d(12.34))
	if err != nil {
		t.Fatalf("create stock failed: %v", err)
	}

	if st.ID == 0 {
		t.Error("expected an assigned id")
	}
	if st.Version != 1 {
		t.Errorf("expected version 1, got %d", st.Version)
	}
	if !st.CurrentPrice.Equal(d(12.34)) {
		t.Errorf("unexpected price %s", st.CurrentPrice)
	}
}

func TestCreateStock_Validation(t *testing.T) {
	eng, _ := newTestEngine(t)

	cases := []struct {
		name  string
		stock string
		price float64
	}{
		{"empty name", "  ", 10},
		{"zero price", "ACME", 0},
		{"negative price", "ACME", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CreateStock(context.Background(), tc.stock, "", d(tc.price))
			var invalid *engine.InvalidArgumentError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidArgumentError, got %v", err)
			}
		})
	}
}

func TestCreateStock_DuplicateName(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.CreateStock(context.Background(), "ACME", "", d(10)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := eng.CreateStock(context.Background(), "ACME", "", d(20))

	var conflict *engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if !strings.Contains(conflict.Error(), "ACME") {
		t.Errorf("error should name the duplicate, got %q", conflict.Error())
	}
}

func TestUpdateStockPrice(t *testing.T) {
	eng, ms := newTestEngine(t)
	ids := seedStocks(t, ms, "stock", 1)

	updated, err := eng.UpdateStockPrice(context.Background(), ids[0], d(42.01))
	if err != nil {
		t.Fatalf("update price failed: %v", err)
	}

	if !updated.CurrentPrice.Equal(d(42.01)) {
		t.Errorf("unexpected price %s", updated.CurrentPrice)
	}
	if updated.Version != 2 {
		t.Errorf("expected version bump to 2, got %d", updated.Version)
	}
}

func TestUpdateStockPrice_NotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.UpdateStockPrice(context.Background(), 42, d(10))

	var notFound *engine.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// staleStore forces SaveStock to report a lost version race.
type staleStore struct {
	store.Store
}

func (s *staleStore) InTx(_ context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func (s *staleStore) SaveStock(context.Context, *model.Stock) error {
	return store.ErrStaleWrite
}

func TestUpdateStockPrice_StaleWrite(t *testing.T) {
	ms := store.NewMemoryStore()
	ids := seedStocks(t, ms, "stock", 1)
	eng := engine.New(&staleStore{Store: ms}, nil)

	_, err := eng.UpdateStockPrice(context.Background(), ids[0], d(10))

	var stale *engine.StaleWriteError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleWriteError, got %v", err)
	}
	if stale.Kind != engine.KindStock || stale.ID != ids[0] {
		t.Errorf("unexpected stale error details: %+v", stale)
	}
}

func TestCreateExchange_StartsNotLive(t *testing.T) {
	eng, _ := newTestEngine(t)

	ex, err := eng.CreateExchange(context.Background(), "NYSE", "New York")
	if err != nil {
		t.Fatalf("create exchange failed: %v", err)
	}

	if ex.LiveInMarket {
		t.Error("new exchange must not be live")
	}
	if ex.Version != 1 {
		t.Errorf("expected version 1, got %d", ex.Version)
	}
}

func TestUpdateExchange_DoesNotTouchLiveFlag(t *testing.T) {
	eng, ms := newTestEngine(t)
	ex := seedExchange(t, ms, "NYSE")
	ids := seedStocks(t, ms, "stock", 10)
	seedListings(t, eng, ex.ID, ids)

	updated, err := eng.UpdateExchange(context.Background(), ex.ID, "NYSE Arca", "renamed")
	if err != nil {
		t.Fatalf("update exchange failed: %v", err)
	}

	if updated.Name != "NYSE Arca" {
		t.Errorf("unexpected name %q", updated.Name)
	}
	if !updated.LiveInMarket {
		t.Error("rename must not clear the live flag")
	}
}

func TestListLiveExchanges(t *testing.T) {
	eng, ms := newTestEngine(t)
	live := seedExchange(t, ms, "NYSE")
	seedExchange(t, ms, "LSE")
	ids := seedStocks(t, ms, "stock", 10)
	seedListings(t, eng, live.ID, ids)

	exchanges, err := eng.ListLiveExchanges(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list live failed: %v", err)
	}

	if len(exchanges) != 1 || exchanges[0].ID != live.ID {
		t.Errorf("expected only the live exchange, got %+v", exchanges)
	}
}

func TestExchangesForStock(t *testing.T) {
	eng, ms := newTestEngine(t)
	exA := seedExchange(t, ms, "NYSE")
	exB := seedExchange(t, ms, "LSE")
	seedExchange(t, ms, "TSE")
	ids := seedStocks(t, ms, "stock", 1)
	seedListings(t, eng, exA.ID, ids)
	seedListings(t, eng, exB.ID, ids)

	exchanges, err := eng.ExchangesForStock(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("exchanges for stock failed: %v", err)
	}

	if len(exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(exchanges))
	}
}

func TestStocksOnExchange_ExchangeNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.StocksOnExchange(context.Background(), 42, 0, 0)

	var notFound *engine.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

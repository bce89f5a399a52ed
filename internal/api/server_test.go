package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgrid/listing-engine/internal/api"
	"github.com/stockgrid/listing-engine/internal/engine"
	"github.com/stockgrid/listing-engine/internal/model"
	"github.com/stockgrid/listing-engine/internal/store"
)

type testEnv struct {
	router http.Handler
	engine *engine.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ms := store.NewMemoryStore()
	eng := engine.New(ms, nil)
	srv := api.NewServer(eng, nil)
	return &testEnv{router: srv.Router(5 * time.Second), engine: eng}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (env *testEnv) seedExchange(t *testing.T, name string) *model.Exchange {
	t.Helper()
	ex, err := env.engine.CreateExchange(context.Background(), name, "")
	if err != nil {
		t.Fatalf("seed exchange: %v", err)
	}
	return ex
}

func (env *testEnv) seedStocks(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		st, err := env.engine.CreateStock(context.Background(),
			fmt.Sprintf("stock-%d", i), "", decimal.NewFromInt(100))
		if err != nil {
			t.Fatalf("seed stock: %v", err)
		}
		ids[i] = st.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestCreateStock(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/stocks", map[string]any{
		"name":          "ACME",
		"description":   "widgets",
		"current_price": "12.34",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[model.Stock](t, rec)
	if st.ID == 0 || st.Name != "ACME" || st.Version != 1 {
		t.Errorf("unexpected stock %+v", st)
	}
}

func TestCreateStock_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stocks", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateStock_DuplicateName(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"name": "ACME", "current_price": "10"}

	env.do(t, http.MethodPost, "/api/v1/stocks", body)
	rec := env.do(t, http.MethodPost, "/api/v1/stocks", body)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestGetStock_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stocks/42", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetStock_BadID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stocks/abc", nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStockPrice(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedStocks(t, 1)

	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/stocks/%d/price", ids[0]),
		map[string]any{"current_price": "42.50"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[model.Stock](t, rec)
	if !st.CurrentPrice.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("unexpected price %s", st.CurrentPrice)
	}
	if st.Version != 2 {
		t.Errorf("expected version 2, got %d", st.Version)
	}
}

func TestUpdateStockPrice_NonPositive(t *testing.T) {
	env := newTestEnv(t)
	ids := env.seedStocks(t, 1)

	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/stocks/%d/price", ids[0]),
		map[string]any{"current_price": "-1"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListStocks_EmptyReturnsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/stocks", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestListStocks_Pagination(t *testing.T) {
	env := newTestEnv(t)
	env.seedStocks(t, 5)

	rec := env.do(t, http.MethodGet, "/api/v1/stocks?page=1&size=2", nil)

	stocks := decodeBody[[]model.Stock](t, rec)
	if len(stocks) != 2 {
		t.Fatalf("expected 2 stocks, got %d", len(stocks))
	}
	if stocks[0].ID != 3 {
		t.Errorf("expected page 1 to start at id 3, got %d", stocks[0].ID)
	}
}

func TestAddListing(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 1)

	rec := env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0]), nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	detail := decodeBody[model.ListingDetail](t, rec)
	if detail.Exchange.ID != ex.ID || detail.Stock.ID != ids[0] {
		t.Errorf("unexpected detail %+v", detail)
	}
}

func TestAddListing_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 1)
	path := fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0])

	env.do(t, http.MethodPost, path, nil)
	rec := env.do(t, http.MethodPost, path, nil)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestAddListingsBatch_GoesLive(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 10)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": ids})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exchanges/%d", ex.ID), nil)
	if !decodeBody[model.Exchange](t, got).LiveInMarket {
		t.Error("exchange should be live after listing 10 stocks")
	}
}

func TestAddListingsBatch_MissingStock(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 1)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": []int64{ids[0], 999}})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "999") {
		t.Errorf("error should name the missing id, got %q", rec.Body.String())
	}

	count := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID), nil)
	if stocks := decodeBody[[]model.Stock](t, count); len(stocks) != 0 {
		t.Errorf("failed batch must not create listings, got %d", len(stocks))
	}
}

func TestAddListingsBatch_Empty(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": []int64{}})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRemoveListingsBatch(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 10)
	env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": ids})

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": ids[:5]})

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exchanges/%d", ex.ID), nil)
	if decodeBody[model.Exchange](t, got).LiveInMarket {
		t.Error("exchange should have dropped out of the market")
	}
}

func TestRemoveListingsBatch_NotListed(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 2)
	env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0]), nil)

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": ids})

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRemoveListing(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 1)
	path := fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0])
	env.do(t, http.MethodPost, path, nil)

	rec := env.do(t, http.MethodDelete, path, nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestStocksNotListed(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 3)
	env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0]), nil)

	rec := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/exchanges/%d/stocks/not-listed", ex.ID), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stocks := decodeBody[[]model.Stock](t, rec)
	if len(stocks) != 2 {
		t.Errorf("expected 2 unlisted stocks, got %d", len(stocks))
	}
}

func TestListLiveExchanges(t *testing.T) {
	env := newTestEnv(t)
	live := env.seedExchange(t, "NYSE")
	env.seedExchange(t, "LSE")
	ids := env.seedStocks(t, 10)
	env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", live.ID),
		map[string]any{"stock_ids": ids})

	rec := env.do(t, http.MethodGet, "/api/v1/exchanges/live", nil)

	exchanges := decodeBody[[]model.Exchange](t, rec)
	if len(exchanges) != 1 || exchanges[0].ID != live.ID {
		t.Errorf("expected only the live exchange, got %+v", exchanges)
	}
}

func TestDeleteStock_CascadeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 10)
	env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/exchanges/%d/stocks", ex.ID),
		map[string]any{"stock_ids": ids})

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/stocks/%d", ids[0]), nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/exchanges/%d", ex.ID), nil)
	if decodeBody[model.Exchange](t, got).LiveInMarket {
		t.Error("exchange should have dropped out of the market after cascade")
	}
}

func TestDeleteExchange(t *testing.T) {
	env := newTestEnv(t)
	ex := env.seedExchange(t, "NYSE")
	ids := env.seedStocks(t, 1)
	env.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/exchanges/%d/stocks/%d", ex.ID, ids[0]), nil)

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/exchanges/%d", ex.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	stock := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/stocks/%d", ids[0]), nil)
	if stock.Code != http.StatusOK {
		t.Errorf("stock should survive exchange deletion, got %d", stock.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodOptions, "/api/v1/stocks", nil)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

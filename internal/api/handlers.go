package api

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/stockgrid/listing-engine/internal/model"
)

// --- Request types ---

// CreateStockRequest is the JSON body for stock creation.
type CreateStockRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// PriceUpdateRequest is the JSON body for PUT /stocks/{id}/price.
type PriceUpdateRequest struct {
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// ExchangeRequest is the JSON body for exchange creation and update. The
// live flag is derived by the engine and deliberately absent.
type ExchangeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListingBatchRequest is the JSON body for the batch listing operations.
type ListingBatchRequest struct {
	StockIDs []int64 `json:"stock_ids"`
}

// --- Stock handlers ---

// CreateStock handles POST /api/v1/stocks
func (s *Server) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req CreateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := s.engine.CreateStock(r.Context(), req.Name, req.Description, req.CurrentPrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// GetStock handles GET /api/v1/stocks/{stockID}
func (s *Server) GetStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := s.engine.GetStock(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListStocks handles GET /api/v1/stocks
func (s *Server) ListStocks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	stocks, err := s.engine.ListStocks(r.Context(), limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

// UpdateStockPrice handles PUT /api/v1/stocks/{stockID}/price
func (s *Server) UpdateStockPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PriceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := s.engine.UpdateStockPrice(r.Context(), id, req.CurrentPrice)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DeleteStock handles DELETE /api/v1/stocks/{stockID}
func (s *Server) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.engine.DeleteStock(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExchangesForStock handles GET /api/v1/stocks/{stockID}/exchanges
func (s *Server) ExchangesForStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	exchanges, err := s.engine.ExchangesForStock(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if exchanges == nil {
		exchanges = []model.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// --- Exchange handlers ---

// CreateExchange handles POST /api/v1/exchanges
func (s *Server) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ex, err := s.engine.CreateExchange(r.Context(), req.Name, req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

// GetExchange handles GET /api/v1/exchanges/{exchangeID}
func (s *Server) GetExchange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ex, err := s.engine.GetExchange(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// ListExchanges handles GET /api/v1/exchanges
func (s *Server) ListExchanges(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	exchanges, err := s.engine.ListExchanges(r.Context(), limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if exchanges == nil {
		exchanges = []model.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// ListLiveExchanges handles GET /api/v1/exchanges/live
func (s *Server) ListLiveExchanges(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	exchanges, err := s.engine.ListLiveExchanges(r.Context(), limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if exchanges == nil {
		exchanges = []model.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// UpdateExchange handles PUT /api/v1/exchanges/{exchangeID}
func (s *Server) UpdateExchange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ex, err := s.engine.UpdateExchange(r.Context(), id, req.Name, req.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// DeleteExchange handles DELETE /api/v1/exchanges/{exchangeID}
func (s *Server) DeleteExchange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.engine.DeleteExchange(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StocksOnExchange handles GET /api/v1/exchanges/{exchangeID}/stocks
func (s *Server) StocksOnExchange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit, offset := pageParams(r)
	stocks, err := s.engine.StocksOnExchange(r.Context(), id, limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

// StocksNotListed handles GET /api/v1/exchanges/{exchangeID}/stocks/not-listed
func (s *Server) StocksNotListed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit, offset := pageParams(r)
	stocks, err := s.engine.StocksNotListed(r.Context(), id, limit, offset)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

// --- Listing handlers ---

// AddListing handles POST /api/v1/exchanges/{exchangeID}/stocks/{stockID}
func (s *Server) AddListing(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	stockID, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detail, err := s.engine.AddListing(r.Context(), exchangeID, stockID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// AddListingsBatch handles POST /api/v1/exchanges/{exchangeID}/stocks
func (s *Server) AddListingsBatch(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ListingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	details, err := s.engine.AddListingsBatch(r.Context(), exchangeID, req.StockIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, details)
}

// RemoveListing handles DELETE /api/v1/exchanges/{exchangeID}/stocks/{stockID}
func (s *Server) RemoveListing(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	stockID, err := pathID(r, "stockID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.engine.RemoveListing(r.Context(), exchangeID, stockID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveListingsBatch handles DELETE /api/v1/exchanges/{exchangeID}/stocks
func (s *Server) RemoveListingsBatch(w http.ResponseWriter, r *http.Request) {
	exchangeID, err := pathID(r, "exchangeID")
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ListingBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.RemoveListingsBatch(r.Context(), exchangeID, req.StockIDs); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

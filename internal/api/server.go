// Package api provides the HTTP layer over the listing engine: routing,
// request decoding, pagination parameters, and the mapping from engine
// errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockgrid/listing-engine/internal/engine"
	"github.com/stockgrid/listing-engine/internal/events"
	"github.com/stockgrid/listing-engine/internal/metrics"
)

// Server wires the engine and the event hub into an HTTP handler.
type Server struct {
	engine *engine.Engine
	hub    *events.Hub // optional
}

// NewServer creates a server. Pass nil for hub if WebSocket broadcasting is
// not needed.
func NewServer(eng *engine.Engine, hub *events.Hub) *Server {
	return &Server{engine: eng, hub: hub}
}

// Router builds the chi router with the full route table and middleware.
func (s *Server) Router(requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"listing-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			// WebSocket endpoint for real-time listing events.
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", s.ListStocks)
			r.Post("/", s.CreateStock)
			r.Get("/{stockID}", s.GetStock)
			r.Delete("/{stockID}", s.DeleteStock)
			r.Put("/{stockID}/price", s.UpdateStockPrice)
			r.Get("/{stockID}/exchanges", s.ExchangesForStock)
		})

		r.Route("/exchanges", func(r chi.Router) {
			r.Get("/", s.ListExchanges)
			r.Post("/", s.CreateExchange)
			r.Get("/live", s.ListLiveExchanges)
			r.Get("/{exchangeID}", s.GetExchange)
			r.Put("/{exchangeID}", s.UpdateExchange)
			r.Delete("/{exchangeID}", s.DeleteExchange)
			r.Get("/{exchangeID}/stocks", s.StocksOnExchange)
			r.Get("/{exchangeID}/stocks/not-listed", s.StocksNotListed)
			r.Post("/{exchangeID}/stocks", s.AddListingsBatch)
			r.Delete("/{exchangeID}/stocks", s.RemoveListingsBatch)
			r.Post("/{exchangeID}/stocks/{stockID}", s.AddListing)
			r.Delete("/{exchangeID}/stocks/{stockID}", s.RemoveListing)
		})
	})

	return r
}

// --- Response helpers ---

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeEngineError maps an engine error onto a status code. Validation
// failures and conflicts carry the engine's message; anything unexpected
// gets a generic 500.
func writeEngineError(w http.ResponseWriter, err error) {
	var notFound *engine.NotFoundError
	var conflict *engine.ConflictError
	var invalid *engine.InvalidArgumentError
	var stale *engine.StaleWriteError

	switch {
	case errors.As(err, &notFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &invalid):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &stale):
		metrics.StaleWrites.Inc()
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// --- Request helpers ---

// pathID parses a positive integer id from a chi URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageParams parses ?page and ?size into a limit/offset pair.
func pageParams(r *http.Request) (limit, offset int) {
	page := 0
	size := defaultPageSize

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, page * size
}

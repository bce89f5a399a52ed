// Package events — WebSocket hub broadcasting listing changes and live
// status transitions to connected clients.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stockgrid/listing-engine/internal/metrics"
	"github.com/stockgrid/listing-engine/internal/model"
)

// Event is a JSON message sent to WebSocket clients.
type Event struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	ExchangeID   int64   `json:"exchange_id"`
	StockIDs     []int64 `json:"stock_ids,omitempty"`
	LiveInMarket *bool   `json:"live_in_market,omitempty"`
}

// Hub manages WebSocket connections and broadcasts events to all connected
// clients when the listing set or an exchange's live status changes. It
// implements the engine's Notifier interface.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ListingsChanged broadcasts a listing mutation. Called by the engine after
// the transaction committed.
func (h *Hub) ListingsChanged(exchangeID int64, stockIDs []int64, added bool) {
	typ := "listings_removed"
	if added {
		typ = "listings_added"
	}
	h.publish(Event{
		ID:         uuid.New().String(),
		Type:       typ,
		ExchangeID: exchangeID,
		StockIDs:   stockIDs,
	})
}

// LiveStatusChanged broadcasts a live-in-market flip.
func (h *Hub) LiveStatusChanged(ex model.Exchange) {
	live := ex.LiveInMarket
	h.publish(Event{
		ID:           uuid.New().String(),
		Type:         "live_status_changed",
		ExchangeID:   ex.ID,
		LiveInMarket: &live,
	})
}

// publish sends an event to all connected clients.
func (h *Hub) publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking engine operations.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

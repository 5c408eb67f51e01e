// Package api serves the HTTP/WebSocket surface: health, on-demand depth
// snapshots, and a subscriber fan-out hub for live MetricsSnapshot and raw
// venue frames (spec §4.8 / §6).
//
// Hub/Client is adapted from the teacher's internal/api/stream.go
// register/unregister/broadcast loop and ping/pong write pump. The
// teacher's dashboard is read-only (readPump discards all client frames);
// this core's Hub instead parses SubscribeControlMessage frames so clients
// can narrow the symbol set they receive — a capability spec.md's fan-out
// contract requires that the teacher's dashboard never needed.
package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orderflow-core/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Hub manages WebSocket subscriber connections and fans out metrics
// snapshots and raw frames to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan symbolMessage
	mu         sync.RWMutex
	logger     *slog.Logger

	// onSubscribe/onUnsubscribe let the engine track per-symbol subscriber
	// refcounts (spec §3: a symbol's processing task is created on first
	// subscription, destroyed when unreferenced and flat) without Hub
	// importing the engine package back.
	onSubscribe   func(symbol string)
	onUnsubscribe func(symbol string)
}

// SetSubscriptionHooks wires callbacks invoked whenever any client
// subscribes/unsubscribes to a symbol, including the implicit unsubscribe
// of every symbol a client held when it disconnects.
func (h *Hub) SetSubscriptionHooks(onSubscribe, onUnsubscribe func(symbol string)) {
	h.onSubscribe = onSubscribe
	h.onUnsubscribe = onUnsubscribe
}

type symbolMessage struct {
	symbol string
	data   []byte
}

// Client is one subscriber connection. It receives only messages for
// symbols in its subscribed set; an empty set means "all symbols".
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed map[string]bool
}

// NewHub creates a subscriber fan-out hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan symbolMessage, 256),
		logger:     logger.With("component", "api-hub"),
	}
}

// Run processes registration and broadcast events until the channels are
// abandoned (caller should run this in a goroutine for the process
// lifetime).
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("client connected", "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			if h.onUnsubscribe != nil {
				for _, s := range client.subscribedSymbols() {
					h.onUnsubscribe(s)
				}
			}
			h.logger.Info("client disconnected", "count", len(h.clients))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.symbol) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastMetrics fans out a MetricsSnapshot to every subscriber
// interested in its symbol.
func (h *Hub) BroadcastMetrics(snap types.MetricsSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("failed to marshal metrics snapshot", "error", err)
		return
	}
	h.enqueue(snap.Symbol, data)
}

// BroadcastRawFrame fans out an unmodified venue frame (TAS/depth diff)
// tagged with its symbol, for subscribers that want the raw feed.
func (h *Hub) BroadcastRawFrame(symbol string, data []byte) {
	h.enqueue(symbol, data)
}

func (h *Hub) enqueue(symbol string, data []byte) {
	select {
	case h.broadcast <- symbolMessage{symbol: symbol, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "symbol", symbol)
	}
}

func (c *Client) wants(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[symbol]
}

func (c *Client) applyControl(msg types.SubscribeControlMessage) {
	c.mu.Lock()
	switch msg.Type {
	case "subscribe":
		for _, s := range msg.Symbols {
			c.subscribed[s] = true
		}
	case "unsubscribe":
		for _, s := range msg.Symbols {
			delete(c.subscribed, s)
		}
	}
	c.mu.Unlock()

	if c.hub.onSubscribe != nil && msg.Type == "subscribe" {
		for _, s := range msg.Symbols {
			c.hub.onSubscribe(s)
		}
	}
	if c.hub.onUnsubscribe != nil && msg.Type == "unsubscribe" {
		for _, s := range msg.Symbols {
			c.hub.onUnsubscribe(s)
		}
	}
}

// subscribedSymbols returns a snapshot of the symbols this client currently
// holds a subscription reference to.
func (c *Client) subscribedSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for s := range c.subscribed {
		out = append(out, s)
	}
	return out
}

// NewClient registers conn with hub and starts its read/write pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}

		var ctrl types.SubscribeControlMessage
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		c.applyControl(ctrl)
	}
}

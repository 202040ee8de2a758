// Package ws streams accepted orders to WebSocket clients. The hub relays
// the signal bus "orders" channel, so every service instance's submissions
// reach every connected client.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// filter narrows which order events a client receives. Zero fields match
// everything.
type filter struct {
	chainID   int64
	swapper   common.Address
	orderType domain.OrderType
}

// eventHeader is the subset of an order event the hub routes on.
type eventHeader struct {
	ChainID   int64            `json:"chainId"`
	Swapper   string           `json:"swapper"`
	OrderType domain.OrderType `json:"orderType"`
}

func (f filter) matches(data []byte) bool {
	if f == (filter{}) {
		return true
	}
	var hdr eventHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return false
	}
	if f.chainID != 0 && hdr.ChainID != f.chainID {
		return false
	}
	if (f.swapper != common.Address{}) && common.HexToAddress(hdr.Swapper) != f.swapper {
		return false
	}
	if f.orderType != "" && hdr.OrderType != f.orderType {
		return false
	}
	return true
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter filter
	// binary clients get protobuf Struct frames instead of JSON text.
	binary bool
}

// protoFrame re-encodes a JSON event as a google.protobuf.Struct.
func protoFrame(data []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// Hub fans bus messages out to connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	// done is closed when Run returns.
	done    chan struct{}
	bus     domain.SignalBus
	channel string
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHub creates a hub relaying channel from bus.
func NewHub(bus domain.SignalBus, channel string, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		channel:    channel,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run subscribes to the bus and serves the hub until ctx is cancelled. It
// must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	msgCh, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed", slog.String("channel", h.channel))
	go h.relay(ctx, msgCh)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.filter.matches(data) {
					continue
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) relay(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.channel))
				return
			}
			select {
			case h.broadcast <- data:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws?chainId=1&swapper=0x...&orderType=Dutch_V2&format=proto
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(r)
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "proto" {
		ok = false
	}
	if !ok {
		http.Error(w, `{"error":"invalid stream filter"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		filter: f,
		binary: format == "proto",
	}
	// The greeting goes into the fresh buffer before registration, so it is
	// always the first frame and never races Run closing send.
	hello, _ := json.Marshal(map[string]any{"type": "subscribed", "channel": h.channel})
	c.send <- hello
	if !h.add(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func parseFilter(r *http.Request) (filter, bool) {
	q := r.URL.Query()
	var f filter
	if v := q.Get("chainId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return filter{}, false
		}
		f.chainID = n
	}
	if v := strings.TrimSpace(q.Get("swapper")); v != "" {
		if !common.IsHexAddress(v) {
			return filter{}, false
		}
		f.swapper = common.HexToAddress(v)
	}
	if v := q.Get("orderType"); v != "" {
		f.orderType = domain.OrderType(v)
		if !f.orderType.Valid() {
			return filter{}, false
		}
	}
	return f, true
}

// add hands c to Run. It reports false once Run has returned.
func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove hands c back to Run, or does nothing once Run has returned.
func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains client frames so pongs and close frames are processed.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *client) writePump() {
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
			frameType := websocket.TextMessage
			if c.binary {
				frame, err := protoFrame(message)
				if err != nil {
					c.hub.logger.Warn("ws: proto encode failed", slog.String("error", err.Error()))
					continue
				}
				frameType, message = websocket.BinaryMessage, frame
			}
			if err := c.conn.WriteMessage(frameType, message); err != nil {
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

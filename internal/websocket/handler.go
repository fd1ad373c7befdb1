// Package websocket pushes live crawl events to monitor clients.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/PentesterFlow/APIHunter/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultSendBuffer = 256
	defaultReplay     = 200
	maxClientMessage  = 4096
)

// Hub fans broadcast messages out to every connected client.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	recorder *Recorder
	log      *logger.Logger

	onMessage    func(ClientMessage)
	sendBuffer   int
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *logger.Logger) HubOption {
	return func(h *Hub) { h.log = l.WithComponent("websocket") }
}

// WithReplay sets how many event frames new clients receive on connect.
func WithReplay(n int) HubOption {
	return func(h *Hub) { h.recorder = NewRecorder(n) }
}

// WithMessageHandler receives messages clients send to the hub.
func WithMessageHandler(fn func(ClientMessage)) HubOption {
	return func(h *Hub) { h.onMessage = fn }
}

// WithPingInterval sets the keepalive period. Pong wait is derived from it.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		h.pingInterval = d
		h.pongWait = d * 10 / 9
	}
}

// NewHub creates a hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The monitor is served on a local address to a local browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		recorder:     NewRecorder(defaultReplay),
		log:          logger.Nop(),
		sendBuffer:   defaultSendBuffer,
		writeWait:    10 * time.Second,
		pongWait:     60 * time.Second,
		pingInterval: 54 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, h.sendBuffer)}

	// Queue the replay before registering so it precedes live frames.
	for _, frame := range h.recorder.Replay() {
		select {
		case c.send <- frame:
		default:
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debugf("WebSocket client connected (%d total)", n)

	go c.writePump()
	go c.readPump()
}

// Broadcast encodes a message once and queues it for every client. A client
// whose buffer is full is disconnected rather than allowed to stall the hub.
func (h *Hub) Broadcast(t MessageType, data interface{}) error {
	frame, err := json.Marshal(Message{Type: t, Data: data, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	h.recorder.Record(t, frame)

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping slow WebSocket client")
		h.remove(c)
	}
	return nil
}

// Reset clears the replay buffer.
func (h *Hub) Reset() {
	h.recorder.Reset()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.once.Do(func() { close(c.send) })
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.hub.onMessage == nil {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.WithError(err).Debug("Ignoring malformed client message")
			continue
		}
		c.hub.onMessage(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

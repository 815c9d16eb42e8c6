package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// EventConnectivityChanged is broadcast whenever the monitor reports a transition.
const EventConnectivityChanged = "connectivity.changed"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts same-host pages and anything served from loopback.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Envelope wraps every message pushed to websocket clients.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// clientMessage is what a websocket client may send.
type clientMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events,omitempty"`
	Online *bool    `json:"online,omitempty"`
}

// WSClient is one websocket connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	mu            sync.RWMutex
	subscriptions map[string]bool
}

// wants reports whether the client should receive messageType. A client with
// no subscriptions receives everything.
func (c *WSClient) wants(messageType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[messageType]
}

type outbound struct {
	messageType string
	payload     []byte
}

// WSHub fans coordinator and connectivity events out to websocket clients.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan outbound
	unregister chan *WSClient
	done       chan struct{}
	closeOnce  sync.Once

	// mu guards clients and closed. A client's send channel is only closed
	// with mu held for writing, after the client is removed from clients.
	mu     sync.RWMutex
	closed bool

	// onConnectivity receives {"action":"connectivity"} reports.
	onConnectivity func(online bool)
}

// NewWSHub creates a hub and starts its dispatch loop. onConnectivity may be nil.
func NewWSHub(onConnectivity func(online bool)) *WSHub {
	hub := &WSHub{
		clients:        make(map[string]*WSClient),
		broadcast:      make(chan outbound, sendBuffer),
		unregister:     make(chan *WSClient),
		done:           make(chan struct{}),
		onConnectivity: onConnectivity,
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			h.closed = true
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Websocket client disconnected", map[string]interface{}{"client_id": client.id, "total": total})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.messageType) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every interested client. It never blocks:
// when the hub is closed or its buffer is full the message is dropped.
func (h *WSHub) Broadcast(messageType string, data map[string]interface{}) {
	bytes, err := json.Marshal(Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logging.Error("Failed to marshal websocket message", err, map[string]interface{}{"type": messageType})
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- outbound{messageType: messageType, payload: bytes}:
	default:
		logging.Warn("Websocket broadcast buffer full, dropping message", map[string]interface{}{"type": messageType})
	}
}

// Close disconnects every client and stops the dispatch loop.
func (h *WSHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request and registers the connection.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &WSClient{
		id:            uuid.New(),
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		hub:           h,
		subscriptions: make(map[string]bool),
	}

	if !h.add(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// add registers client unless the hub is closed.
func (h *WSHub) add(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	logging.Debug("Websocket client connected", map[string]interface{}{"client_id": client.id, "total": total})
	return true
}

// deliver queues payload for client if it is still registered. It reports
// whether the payload was queued.
func (h *WSHub) deliver(client *WSClient, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[client.id] != client {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("Websocket read error", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logging.Debug("Ignoring malformed websocket message", map[string]interface{}{"client_id": c.id})
			continue
		}
		c.handle(msg)
	}
}

func (c *WSClient) handle(msg clientMessage) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		for _, e := range msg.Events {
			c.subscriptions[e] = true
		}
		c.mu.Unlock()
		c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})

	case "unsubscribe":
		c.mu.Lock()
		for _, e := range msg.Events {
			delete(c.subscriptions, e)
		}
		c.mu.Unlock()

	case "ping":
		c.reply(map[string]interface{}{"action": "pong"})

	case "connectivity":
		if msg.Online == nil {
			c.reply(map[string]interface{}{"action": "error", "error": "online is required"})
			return
		}
		if c.hub.onConnectivity != nil {
			c.hub.onConnectivity(*msg.Online)
		}
		c.reply(map[string]interface{}{"action": "connectivity_ack", "online": *msg.Online})

	default:
		logging.Debug("Ignoring unknown websocket action", map[string]interface{}{"action": msg.Action})
	}
}

// reply sends directly to this client, bypassing subscriptions.
func (c *WSClient) reply(body map[string]interface{}) {
	body["timestamp"] = time.Now().Unix()
	bytes, err := json.Marshal(body)
	if err != nil {
		return
	}

	if !c.hub.deliver(c, bytes) {
		logging.Warn("Websocket reply dropped", map[string]interface{}{"client_id": c.id, "action": fmt.Sprint(body["action"])})
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

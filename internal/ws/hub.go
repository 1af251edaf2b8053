// Package ws fans order lifecycle events out to connected watch clients.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	// The mock backend is a dev tool; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderEvent is the frame pushed to watchers when an order changes.
type OrderEvent struct {
	Type      string        `json:"type"`
	Order     *models.Order `json:"order,omitempty"`
	OldStatus string        `json:"old_status,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type client struct {
	conn   *websocket.Conn
	send   chan OrderEvent
	hub    *Hub
	logger *logrus.Logger
}

type Hub struct {
	clients    map[*client]bool
	broadcast  chan OrderEvent
	register   chan *client
	unregister chan *client
	logger     *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan OrderEvent, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

// Run owns the client set. Call it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.WithField("client_count", len(h.clients)).Info("Watch client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.WithField("client_count", len(h.clients)).Info("Watch client disconnected")

		case event := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// OrderCreated broadcasts a newly placed order.
func (h *Hub) OrderCreated(order *models.Order) {
	h.push(OrderEvent{Type: "order.created", Order: order, Timestamp: time.Now()})
}

// StatusChanged broadcasts an order status transition.
func (h *Hub) StatusChanged(order *models.Order, oldStatus string) {
	h.push(OrderEvent{Type: "order.status-changed", Order: order, OldStatus: oldStatus, Timestamp: time.Now()})
}

func (h *Hub) push(event OrderEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event")
	}
}

// ServeWS upgrades the connection and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan OrderEvent, 64),
		hub:    h,
		logger: h.logger,
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket read error")
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
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				c.logger.WithError(err).Error("Failed to marshal order event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

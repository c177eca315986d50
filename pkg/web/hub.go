package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/trulydev/truly/internal/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// statusHub fans live status snapshots out to every subscribed websocket.
// Clients that cannot keep up are dropped rather than allowed to stall the
// broadcaster.
type statusHub struct {
	clients    map[*statusClient]bool
	broadcast  chan []byte
	register   chan *statusClient
	unregister chan *statusClient

	mu sync.RWMutex
}

func newStatusHub() *statusHub {
	return &statusHub{
		clients:    make(map[*statusClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *statusClient),
		unregister: make(chan *statusClient),
	}
}

// run is the hub's main loop; call in a goroutine.
func (h *statusHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("status subscriber connected", "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case payload := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow status subscriber")
				}
			}
			h.mu.Unlock()
		}
	}
}

// broadcastJSON encodes v and queues it for every subscriber. A full queue
// drops the update; the next one supersedes it anyway.
func (h *statusHub) broadcastJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("status encode failed", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// statusClient is one websocket subscription.
type statusClient struct {
	hub  *statusHub
	conn *websocket.Conn
	send chan []byte
}

func newStatusClient(hub *statusHub, conn *websocket.Conn) *statusClient {
	c := &statusClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 16),
	}
	hub.register <- c
	return c
}

// serve pumps until the connection closes. Writes happen only on this
// client's write pump, so the connection is never written concurrently.
func (c *statusClient) serve() {
	go c.writePump()
	c.readPump()
}

func (c *statusClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// subscribers never send anything meaningful; reading just detects
	// disconnects and pongs
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *statusClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

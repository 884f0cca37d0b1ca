package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

const (
	writeWait      = constants.WSWriteWaitSeconds * time.Second
	pongWait       = constants.WSPongWaitSeconds * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Hub pushes broadcaster events to websocket clients.
type Hub struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	register    chan *wsClient
	unregister  chan *wsClient
	clients     map[*wsClient]struct{}
	done        chan struct{}
}

// NewHub creates a hub fed by b. checkOrigin decides which browser origins
// may connect; nil accepts same-host origins only. Call Run to start it.
func NewHub(b *Broadcaster, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		broadcaster: b,
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin},
		register:    make(chan *wsClient),
		unregister:  make(chan *wsClient),
		clients:     make(map[*wsClient]struct{}),
		done:        make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	events := h.broadcaster.AddListener()
	defer func() {
		h.broadcaster.RemoveListener(events)
		for client := range h.clients {
			h.drop(client)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			h.drop(client)
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("WARNING: ws: failed to marshal event: %v", err)
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// ServeWS upgrades the connection and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards client messages; it only keeps the read deadline moving.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

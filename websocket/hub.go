package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"trashdrop/events"
	"trashdrop/metrics"
)

// Message is what connected clients receive.
type Message struct {
	Type      string       `json:"type"`
	Data      events.Event `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

type envelope struct {
	body        []byte
	eventType   events.Type
	collectorID string
}

// Hub manages WebSocket connections and broadcasting
type Hub struct {
	clients map[*Client]bool

	broadcast chan envelope

	register   chan *Client
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	mutex sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Attach adds a client to the hub. It reports false once the hub has shut
// down.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Detach removes a client. It returns immediately after shutdown.
func (h *Hub) Detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(n))
			log.Infof("Client connected. Total clients: %d", n)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(n))
			log.Infof("Client disconnected. Total clients: %d", n)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.send <- message.body:
				default:
					// Slow client, drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.WebsocketClients.Set(float64(n))
		}
	}
}

// Publish implements events.Publisher. It never blocks on slow clients; when
// the broadcast queue is full the event is dropped.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(Message{Type: string(e.Type), Data: e, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{body: data, eventType: e.Type, collectorID: e.CollectorID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		log.Warnf("Broadcast queue full, dropping %s for %s", e.Type, e.RequestID)
		return nil
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

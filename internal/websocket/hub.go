// internal/websocket/hub.go
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/notifier"
)

const TypeConnection = "connection"

// Hub maintains the set of active clients and pushes change events to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound frames for every client
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *logrus.Entry
	metrics *metrics.Metrics

	quit    chan struct{}
	running bool
	stopped bool
}

func NewHub(logger *logrus.Entry, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithField("component", "websocket.hub"),
		metrics:    m,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background once.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Stop ends the hub loop and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.quit)
}

// Subscribe forwards every notifier event to connected clients and returns the
// unsubscribe function.
func (h *Hub) Subscribe(n *notifier.Notifier) func() {
	return n.OnChange(func(event notifier.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			h.logger.WithError(err).WithField("type", event.Type).Error("Error marshaling change event")
			return
		}
		h.Broadcast(payload)
	})
}

// Broadcast queues a frame for every client. It gives up once the hub stops.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.quit:
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.conn.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.metrics.SetClients(0)
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetClients(count)

			h.logger.WithFields(logrus.Fields{
				"client_id":     client.id,
				"remote_addr":   client.remoteAddr,
				"total_clients": count,
			}).Info("Client registered")

			// Clients may have missed events while disconnected; tell them to
			// re-validate instead of trusting their local view.
			connMsg, _ := json.Marshal(map[string]interface{}{
				"type": TypeConnection,
				"data": map[string]interface{}{
					"status":    "connected",
					"client_id": client.id,
					"resync":    true,
				},
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			select {
			case client.send <- connMsg:
			default:
				h.logger.WithField("client_id", client.id).Warn("Failed to send connection message - client buffer full")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetClients(count)

			h.logger.WithFields(logrus.Fields{
				"client_id":           client.id,
				"total_clients":       count,
				"connection_duration": time.Since(client.connectedAt).String(),
			}).Info("Client unregistered")

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			failCount := 0
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full: drop it, it will resync on reconnect.
					failCount++
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
					h.mu.Unlock()
					h.logger.WithField("client_id", client.id).Warn("Client send buffer full, disconnecting")
				}
			}

			if failCount > 0 {
				h.metrics.SetClients(h.ClientCount())
				h.logger.WithFields(logrus.Fields{
					"success_count": len(clients) - failCount,
					"fail_count":    failCount,
				}).Warn("Some clients failed to receive broadcast")
			}
		}
	}
}

package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler processes one text message received from a client.
type Handler func(c *Client, data []byte)

// ConnectHook runs after a client is registered.
type ConnectHook func(c *Client)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu        sync.RWMutex
	onMessage Handler
	onConnect ConnectHook

	running atomic.Bool
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnMessage installs the handler for client requests.
func (h *Hub) OnMessage(fn Handler) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// OnConnect installs a hook run for every new client.
func (h *Hub) OnConnect(fn ConnectHook) {
	h.mu.Lock()
	h.onConnect = fn
	h.mu.Unlock()
}

func (h *Hub) handler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onMessage
}

// Run starts the hub's main loop. It returns when ctx is cancelled,
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			h.drain()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			hook := h.onConnect
			h.mu.Unlock()
			h.logger.Info("client connected", "client", client.id, "total", count)
			if hook != nil {
				hook(client)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "client", client.id, "remaining", count)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// drain keeps answering clients that connect or disconnect after
// shutdown so their handlers do not block.
func (h *Hub) drain() {
	go func() {
		for {
			select {
			case c := <-h.register:
				c.close()
			case <-h.unregister:
			}
		}
	}()
}

// deliver queues message on every client. A client that cannot take a
// replaceable message skips it; one that cannot take anything else is
// disconnected.
func (h *Hub) deliver(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.Send(message) {
			continue
		}
		if message.Replaceable {
			h.skipped.Add(1)
			h.logger.Debug("client behind, update skipped", "client", client.id, "topic", message.Topic)
			continue
		}
		client.close()
		delete(h.clients, client)
		h.logger.Warn("dropped slow client", "client", client.id, "topic", message.Topic)
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message", "topic", msg.Topic)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Skipped returns how many replaceable updates slow clients missed.
func (h *Hub) Skipped() uint64 {
	return h.skipped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

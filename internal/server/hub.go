// Package server coordinates connection registration, message fan-out, and
// cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/internal/registry"
	"chat-relay/internal/store"
)

// Hub owns the live WebSocket connections and runs the broadcast loop. The
// connection registry is the single source of truth for "who is open right
// now": the hub registers and unregisters entries as connections come and go,
// and resolves broadcast recipients from a registry snapshot at fan-out time.
type Hub struct {
	store          *store.MessageStore
	registry       *registry.Registry
	log            *slog.Logger
	maxMessageSize int64

	clients    map[string]*Client
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage connections. Messages accepted from
// clients are persisted through st before any fan-out; reg tracks the open
// connections and their display names.
func NewHub(st *store.MessageStore, reg *registry.Registry, log *slog.Logger, maxMessageSize int64) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:          st,
		registry:       reg,
		log:            log,
		maxMessageSize: maxMessageSize,
		clients:        make(map[string]*Client),
		broadcast:      make(chan BroadcastMessage),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel used for fan-out of encoded events.
func (h *Hub) GetBroadcastChan() chan<- BroadcastMessage {
	return h.broadcast
}

// Registry exposes the connection registry backing this hub.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("recovered from panic in safeSend", slog.Any("panic", r))
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and message fan-out. Call it in its own goroutine;
// it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			h.mutex.Unlock()
			h.registry.Register(client.id)
			h.log.Info("client registered",
				slog.String("connection_id", client.id),
				slog.String("addr", client.addr),
				slog.Int("total", h.registry.Len()),
			)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closed = true
				h.mutex.Unlock()
				h.registry.Unregister(client.id)
				// Close the channel after releasing the lock
				close(client.send)
				h.log.Info("client unregistered",
					slog.String("connection_id", client.id),
					slog.String("addr", client.addr),
					slog.Int("total", h.registry.Len()),
				)
			} else {
				h.mutex.Unlock()
			}

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)
		}
	}
}

// handleBroadcast fans an encoded event out to every connection currently in
// the registry, the originating one included. Recipients are resolved at
// broadcast time, not at send time: a connection that disconnected just
// before simply misses the delivery.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	ids := h.registry.ListConnections()
	h.log.Debug("broadcasting event", slog.Int("recipients", len(ids)))

	var clientsToRemove []*Client
	for _, id := range ids {
		client := h.lookupClient(id)
		if client == nil {
			// Unregistered between the snapshot and now; lost delivery.
			continue
		}
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

func (h *Hub) lookupClient(id string) *Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[id]
}

// removeFailedClients drops clients whose send buffers are full or closed.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	var channelsToClose []chan []byte
	h.mutex.Lock()
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("client removed due to full send buffer",
				slog.String("connection_id", client.id),
				slog.String("addr", client.addr),
			)
		}
	}
	h.mutex.Unlock()

	for _, client := range clientsToRemove {
		h.registry.Unregister(client.id)
	}

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("error closing client connection",
						slog.String("addr", client.addr),
						slog.Any("error", err),
					)
				}
			}
		}
	}

	h.log.Info("closed client connections", slog.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

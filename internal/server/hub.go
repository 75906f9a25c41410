// Package server coordinates the registry of live connections: registration,
// fan-out delivery, eviction of stalled clients, and connection cleanup.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// hub owns the set of live clients and the lifecycle of their pump
// goroutines. Semantic decisions (history replay, name binding, what gets
// broadcast) live in the SessionManager; the hub only moves payloads.
type hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	sessions   *SessionManager
	logger     *zap.Logger
}

func newHub(sessions *SessionManager, logger *zap.Logger) *hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		sessions:   sessions,
		logger:     logger,
	}
}

// run is the hub's main event loop. Registration and unregistration are
// funneled through it so history replay is ordered against broadcasts, and
// pump goroutines are started and tracked here.
func (h *hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			h.sessions.connect(client)

			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			if h.sessions.disconnect(client) {
				close(client.send)
			}
		}
	}
}

// add inserts a client into the registry. Callers hold the SessionManager
// mutex so membership changes are ordered against broadcasts.
func (h *hub) add(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("client registered",
		zap.String("remote_addr", client.addr),
		zap.Int("total_clients", count))
}

// remove deletes a client from the registry, reporting whether it was still
// present. The client's send channel is closed by the caller afterwards.
func (h *hub) remove(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("client unregistered",
		zap.String("remote_addr", client.addr),
		zap.Int("total_clients", count))
	return true
}

// sendTo queues a payload for one client without blocking. A false return
// means the client is gone or its send buffer is full.
func (h *hub) sendTo(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("recovered from panic in sendTo", zap.Any("panic", r))
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// broadcast delivers a payload to every live client, including the sender of
// the message that produced it. Delivery is fire-and-forget per recipient: a
// client whose buffer is full is evicted, never retried, and never blocks
// the others.
func (h *hub) broadcast(payload []byte) {
	clients := h.snapshot()

	var failed []*Client
	for _, client := range clients {
		if !h.sendTo(client, payload) {
			failed = append(failed, client)
		}
	}

	h.logger.Debug("broadcast delivered",
		zap.Int("clients", len(clients)-len(failed)))

	h.removeFailedClients(failed)
}

// snapshot returns a thread-safe copy of the current client set.
func (h *hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients evicts clients that could not accept a delivery and
// closes their send channels.
func (h *hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.logger.Warn("client removed due to full send buffer",
				zap.String("remote_addr", client.addr))
		}
	}
	h.mutex.Unlock()

	// Close the channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients evicts every client and closes its send channel and
// connection, which unblocks both pumps so shutdown can drain them.
func (h *hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		client.closed = true
		delete(h.clients, client)
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Warn("error closing client connection",
						zap.String("remote_addr", client.addr),
						zap.Error(err))
				}
			}
		}
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// shutdown stops the event loop and waits for the pump goroutines to finish
// or the timeout to elapse.
func (h *hub) shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

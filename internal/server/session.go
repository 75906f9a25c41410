// Package server implements the per-connection session state machine and the
// SessionManager that mediates every client-facing event against the
// presence directory and the message log.
package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session is the ephemeral server-side state bound to one live connection.
// It holds at most one display name: unset until claimed, cleared again on
// logout, and discarded with the connection on disconnect. The name field is
// only touched from the connection's own read pump, so it needs no lock.
type Session struct {
	id   string
	name string
}

// ID returns the session's connection identifier, used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Name returns the display name bound to the session, or "" when unnamed.
func (s *Session) Name() string {
	return s.name
}

// SessionManager owns the presence directory, the message log, and the hub
// of live connections, and drives all session transitions. Its mutex is the
// single serialization point for history mutation and membership changes,
// which is what guarantees that a new connection receives the full history
// before any subsequently broadcast message.
type SessionManager struct {
	mu       sync.Mutex
	cfg      *Config
	presence *Presence
	messages *MessageLog
	hub      *hub
	logger   *zap.Logger
	dropped  atomic.Int64
}

// NewSessionManager wires a manager around explicitly owned state objects;
// there are no package-level singletons behind it.
func NewSessionManager(cfg *Config, presence *Presence, messages *MessageLog, logger *zap.Logger) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		presence: presence,
		messages: messages,
		logger:   logger,
	}
	m.hub = newHub(m, logger)
	return m
}

// Run starts the connection registry's event loop. It blocks and should be
// called in its own goroutine.
func (m *SessionManager) Run() {
	m.hub.run()
}

// Shutdown closes all live connections and waits for their goroutines to
// finish or the timeout to elapse.
func (m *SessionManager) Shutdown(timeout time.Duration) error {
	return m.hub.shutdown(timeout)
}

// Register hands a freshly upgraded connection to the registry loop, which
// replays history to it and starts its pumps. During shutdown the client is
// dropped instead.
func (m *SessionManager) Register(client *Client) {
	select {
	case m.hub.register <- client:
	case <-m.hub.ctx.Done():
	}
}

// Unregister removes a connection from the registry, for example when its
// read pump observes a disconnect. During shutdown the registry has already
// evicted everyone, so the send must not block.
func (m *SessionManager) Unregister(client *Client) {
	select {
	case m.hub.unregister <- client:
	case <-m.hub.ctx.Done():
	}
}

// DroppedMessages reports how many messages from unnamed sessions have been
// silently discarded. The drop itself is invisible on the wire; this counter
// keeps it observable.
func (m *SessionManager) DroppedMessages() int64 {
	return m.dropped.Load()
}

// connect adds the client to the registry and delivers the full message
// history to it, all under the manager mutex so no broadcast can interleave
// between membership and replay.
func (m *SessionManager) connect(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hub.add(client)

	history := m.messages.History()
	if history == nil {
		history = []ChatMessage{}
	}
	payload, err := encodeEvent(EventHistorySnapshot, history)
	if err != nil {
		client.logger.Error("failed to encode history snapshot", zap.Error(err))
		return
	}
	m.hub.sendTo(client, payload)

	client.logger.Info("session connected", zap.Int("history_messages", len(history)))
}

// disconnect removes the client from the registry, reporting whether it was
// still present. The bound name deliberately stays reserved in the presence
// directory: a reloading client must be able to resume the same identity
// without colliding with itself. Only an explicit logout releases it.
func (m *SessionManager) disconnect(client *Client) bool {
	m.mu.Lock()
	removed := m.hub.remove(client)
	m.mu.Unlock()

	if removed {
		client.logger.Info("session closed", zap.String("name", client.session.name))
	}
	return removed
}

// SetName runs the claim protocol for the requesting connection. Rejection
// and acceptance are reported to this connection only. A session that is
// already named re-runs the exact same protocol; on success it binds the new
// name and the previous reservation stays in the directory until logout.
func (m *SessionManager) SetName(client *Client, requested string) {
	name, err := m.presence.Claim(requested)
	switch {
	case errors.Is(err, ErrNameTaken):
		client.logger.Info("name claim rejected", zap.String("requested", requested))
		m.sendEvent(client, EventNameRejected, NameRejectedPayload{Reason: "name taken"})
	case err != nil:
		client.logger.Error("name claim failed", zap.Error(err))
		m.sendEvent(client, EventNameRejected, NameRejectedPayload{Reason: "internal error"})
	default:
		client.session.name = name
		client.logger.Info("name claim accepted", zap.String("name", name))
		m.sendEvent(client, EventNameAccepted, NameAcceptedPayload{Name: name})
	}
}

// SendMessage appends a message to the log and broadcasts the stored record
// to every connected session, including the sender. Messages from sessions
// with no bound name are dropped without any reply; the drop is counted and
// logged but, matching the transport contract, never surfaced to the client.
func (m *SessionManager) SendMessage(client *Client, body string) {
	author := client.session.name
	if author == "" {
		m.dropped.Add(1)
		client.logger.Debug("dropping message from unnamed session")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.messages.Append(author, body)
	if err != nil {
		client.logger.Error("failed to persist message", zap.Error(err))
		return
	}

	payload, err := encodeEvent(EventMessageBroadcast, msg)
	if err != nil {
		client.logger.Error("failed to encode broadcast", zap.Error(err))
		return
	}
	m.hub.broadcast(payload)
}

// Logout releases the session's bound name and returns it to the unnamed
// state. Other sessions are not notified.
func (m *SessionManager) Logout(client *Client) {
	name := client.session.name
	if name == "" {
		return
	}

	if err := m.presence.Release(name); err != nil {
		client.logger.Error("failed to release name", zap.Error(err))
		return
	}

	client.session.name = ""
	client.logger.Info("session logged out", zap.String("name", name))
}

func (m *SessionManager) sendEvent(client *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		client.logger.Error("failed to encode event",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	m.hub.sendTo(client, payload)
}

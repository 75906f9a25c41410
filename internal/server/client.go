// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client represents one WebSocket connection in the chat system. It carries
// the connection, the buffered send channel drained by the write pump, and
// the session state bound to this connection.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	manager        *SessionManager
	hub            *hub
	session        Session
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         *zap.Logger
}

// NewClient creates a Client for the given connection. The send channel is
// buffered so a briefly slow reader does not stall broadcasts.
func NewClient(conn *websocket.Conn, manager *SessionManager, addr string) *Client {
	cfg := manager.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.Server.MaxMessageSize)
	}

	session := Session{id: uuid.NewString()}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		manager:        manager,
		hub:            manager.hub,
		session:        session,
		addr:           addr,
		maxMessageSize: cfg.Server.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.Server.RateLimit),
		rateLimit:      cfg.Server.RateLimit,
		logger: manager.logger.With(
			zap.String("session_id", session.id),
			zap.String("remote_addr", addr)),
	}
}

// GetSendChan returns the client's send channel for reading outgoing events.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Session returns the session state bound to this connection.
func (c *Client) Session() *Session {
	return &c.session
}

// setupReadConnection configures read deadlines and the pong handler for the
// WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.logger.Warn("error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs an appropriate message for the error and returns true
// if the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("inbound event exceeded maximum size",
			zap.Int64("max_message_size", c.maxMessageSize))
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info("client disconnected", zap.Error(err))
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("client connection closed", zap.Error(err))
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("unexpected websocket error", zap.Error(err))
		return true
	}

	c.logger.Warn("websocket read error", zap.Error(err))
	return true
}

// checkRateLimit reports whether the next inbound event may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("rate limit exceeded; discarding event",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("refill_interval", c.rateLimit.refillInterval()))
		return false
	}
	return true
}

// dispatchEvent decodes an inbound envelope and routes it to the session
// manager. Malformed or unknown events are logged and dropped; the
// connection stays up.
func (c *Client) dispatchEvent(raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("invalid event envelope", zap.Error(err))
		return false
	}

	switch env.Event {
	case EventSetName:
		var payload SetNamePayload
		if !decodePayload(c, env.Data, &payload) {
			return false
		}
		c.manager.SetName(c, payload.Name)

	case EventSendMessage:
		var payload SendMessagePayload
		if !decodePayload(c, env.Data, &payload) {
			return false
		}
		c.manager.SendMessage(c, payload.Body)

	case EventLogout:
		c.manager.Logout(c)

	default:
		c.logger.Warn("unknown event", zap.String("event", env.Event))
		return false
	}
	return true
}

func decodePayload(c *Client, data json.RawMessage, out any) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("invalid event payload", zap.Error(err))
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.manager.Unregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Warn("error closing connection in readPump", zap.Error(err))
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.dispatchEvent(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handlePayload(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection in writePump", zap.Error(err))
		}
	}
}

// handlePayload writes an outbound payload and returns false if the
// connection should be closed.
func (c *Client) handlePayload(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Warn("error setting write deadline", zap.Error(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(payload)
}

// writeCloseMessage sends a close message to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing close message", zap.Error(err))
		}
	}
	return false
}

// writeTextMessage writes a payload and any queued payloads in one frame.
func (c *Client) writeTextMessage(payload []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Warn("error creating writer", zap.Error(err))
		return false
	}

	if _, err := w.Write(payload); err != nil {
		c.logger.Warn("error writing payload", zap.Error(err))
		return false
	}

	if !c.writeQueuedPayloads(w) {
		return false
	}

	if err := w.Close(); err != nil {
		c.logger.Warn("error closing writer", zap.Error(err))
		return false
	}
	return true
}

// writeQueuedPayloads drains payloads already queued on the send channel,
// separated by newlines.
func (c *Client) writeQueuedPayloads(w io.WriteCloser) bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.logger.Warn("error writing separator", zap.Error(err))
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.logger.Warn("error writing queued payload", zap.Error(err))
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Warn("error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping message", zap.Error(err))
		return false
	}
	return true
}

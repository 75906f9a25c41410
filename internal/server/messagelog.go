// Package server keeps the durable, ordered record of every chat message and
// replays it to newly connected sessions.
package server

import (
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// messagesCollection is the store collection backing the message log.
const messagesCollection = "messages"

// ChatMessage is one immutable broadcast message. CreatedAt is stamped by
// the server at receipt time, never supplied by the client, and marshals as
// an RFC 3339 timestamp so the persisted format stays stable across
// restarts.
type ChatMessage struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageLog is the append-only history of chat messages. Stored order is
// insertion order and doubles as delivery order for history replay.
type MessageLog struct {
	mu       sync.Mutex
	store    *FileStore
	messages []ChatMessage
	logger   *zap.Logger
	now      func() time.Time
}

// NewMessageLog loads the persisted history from the store. It fails with
// ErrStoreCorrupt when existing data cannot be parsed.
func NewMessageLog(store *FileStore, logger *zap.Logger) (*MessageLog, error) {
	l := &MessageLog{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := store.Load(messagesCollection, &l.messages); err != nil {
		return nil, err
	}
	logger.Info("message log loaded", zap.Int("messages", len(l.messages)))
	return l, nil
}

// Append stamps, persists, and returns a new message as the newest history
// entry. Concurrent writers are serialized so no message is lost and stored
// order reflects arrival order.
func (l *MessageLog) Append(author, body string) (ChatMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := ChatMessage{
		Author:    author,
		Body:      body,
		CreatedAt: l.now(),
	}

	l.messages = append(l.messages, msg)
	if err := l.store.Replace(messagesCollection, l.messages); err != nil {
		l.messages = l.messages[:len(l.messages)-1]
		return ChatMessage{}, err
	}
	return msg, nil
}

// History returns a copy of all persisted messages in original insertion
// order. Every new connection gets the full log; there is no pagination at
// this scale.
func (l *MessageLog) History() []ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.messages)
}

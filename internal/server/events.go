// Package server defines the wire protocol exchanged with chat clients: a
// small JSON envelope naming the event plus a structured payload.
package server

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EventSetName     = "set-name"
	EventSendMessage = "send-message"
	EventLogout      = "logout"
)

// Outbound event names delivered to clients.
const (
	EventHistorySnapshot  = "history-snapshot"
	EventNameAccepted     = "name-accepted"
	EventNameRejected     = "name-rejected"
	EventMessageBroadcast = "message-broadcast"
)

// Envelope frames every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SetNamePayload carries a requested display name.
type SetNamePayload struct {
	Name string `json:"name"`
}

// SendMessagePayload carries the text of an outgoing chat message.
type SendMessagePayload struct {
	Body string `json:"body"`
}

// NameAcceptedPayload confirms the display name bound to the session.
type NameAcceptedPayload struct {
	Name string `json:"name"`
}

// NameRejectedPayload explains a failed name claim to the requester.
type NameRejectedPayload struct {
	Reason string `json:"reason"`
}

// encodeEvent marshals an outbound event envelope.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

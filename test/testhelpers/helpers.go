// Package testhelpers provides common utilities and helper functions for testing the Parley server.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for creating test servers, making HTTP requests, speaking the chat event
// protocol over WebSocket connections, and asserting response properties to reduce code
// duplication in test files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/parley/internal/server"

	"github.com/gorilla/websocket"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// an allowed Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, "http://localhost:8080")
}

// ConnectWebSocketWithOrigin creates a WebSocket connection with an explicit
// Origin header so origin enforcement can be exercised.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent marshals an event envelope and sends it over the connection.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(server.Envelope{Event: event, Data: raw})
}

// EventReader decodes inbound event envelopes from a WebSocket connection.
// The server may coalesce queued events into a single frame separated by
// newlines, so the reader keeps the surplus for subsequent calls.
type EventReader struct {
	conn    *websocket.Conn
	pending [][]byte
}

// NewEventReader wraps a WebSocket connection for event-by-event reading.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next event from the connection, waiting up to five
// seconds for a frame to arrive.
func (r *EventReader) Next() (server.Envelope, error) {
	for len(r.pending) == 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return server.Envelope{}, err
		}
		_, frame, err := r.conn.ReadMessage()
		if err != nil {
			return server.Envelope{}, err
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			if len(line) > 0 {
				r.pending = append(r.pending, line)
			}
		}
	}

	line := r.pending[0]
	r.pending = r.pending[1:]

	var env server.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return server.Envelope{}, err
	}
	return env, nil
}

// ExpectEvent reads the next event and fails the test if it does not match
// the expected event name.
func (r *EventReader) ExpectEvent(t *testing.T, event string) server.Envelope {
	t.Helper()

	env, err := r.Next()
	if err != nil {
		t.Fatalf("Failed to read event %q: %v", event, err)
	}
	if env.Event != event {
		t.Fatalf("Expected event %q, got %q (payload: %s)", event, env.Event, env.Data)
	}
	return env
}

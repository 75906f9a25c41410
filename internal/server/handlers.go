// Package server exposes the HTTP handlers: the WebSocket upgrade endpoint,
// the health check, and the built-in chat page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates the method and origin, upgrades the connection, and registers a
// new client session with the manager. History replay happens as part of
// registration.
func WebSocketHandler(manager *SessionManager) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     manager.cfg.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			manager.logger.Warn("websocket upgrade failed",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("origin", r.Header.Get("Origin")),
				zap.Error(err))
			return
		}

		client := NewClient(conn, manager, r.RemoteAddr)
		manager.Register(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Parley server is running!")
}

// ChatPageHandler serves the embedded chat client page. It speaks the same
// event protocol as any other client: claim a name, send messages, log out,
// and render history and broadcasts as they arrive.
func ChatPageHandler(manager *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if _, err := fmt.Fprint(w, chatPageHTML); err != nil {
			manager.logger.Warn("error writing chat page", zap.Error(err))
		}
	}
}

const chatPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Parley</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 700px; }
        #messages {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #aaa; cursor: default; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .named { background-color: #d4edda; color: #155724; }
        .unnamed { background-color: #fff3cd; color: #856404; }
        .error { color: #721c24; }
        .meta { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Parley</h1>

    <div id="status" class="status unnamed">Pick a name to start chatting</div>

    <div id="namebar">
        <input type="text" id="nameInput" placeholder="Display name...">
        <button id="claimButton" onclick="claimName()">Set name</button>
        <button id="logoutButton" onclick="logout()" disabled>Log out</button>
    </div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const logoutButton = document.getElementById('logoutButton');
        const statusDiv = document.getElementById('status');

        const ws = new WebSocket('ws://' + location.host + '/ws');

        function addLine(html, cls) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            if (cls) el.className = cls;
            el.innerHTML = html;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderMessage(msg) {
            const when = new Date(msg.createdAt).toLocaleTimeString();
            addLine('<strong>' + escapeHtml(msg.author) + '</strong> [' + when + ']: ' + escapeHtml(msg.body));
        }

        function escapeHtml(text) {
            const el = document.createElement('span');
            el.textContent = text;
            return el.innerHTML;
        }

        let named = false;

        function setNamed(name) {
            statusDiv.textContent = named ? 'Chatting as ' + name : 'Pick a name to start chatting';
            statusDiv.className = named ? 'status named' : 'status unnamed';
            messageInput.disabled = !named;
            sendButton.disabled = !named;
            logoutButton.disabled = !named;
        }

        function send(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        function claimName() {
            const name = nameInput.value;
            if (name !== '') send('set-name', {name: name});
        }

        function sendMessage() {
            const body = messageInput.value.trim();
            if (body !== '' && named) {
                send('send-message', {body: body});
                messageInput.value = '';
            }
        }

        function logout() {
            send('logout', {});
            named = false;
            setNamed('');
            addLine('Logged out', 'meta');
        }

        function handleEvent(env) {
            switch (env.event) {
            case 'history-snapshot':
                env.data.forEach(renderMessage);
                break;
            case 'message-broadcast':
                renderMessage(env.data);
                break;
            case 'name-accepted':
                named = true;
                setNamed(env.data.name);
                break;
            case 'name-rejected':
                addLine('Name rejected: ' + escapeHtml(env.data.reason), 'error');
                break;
            }
        }

        ws.onmessage = function(event) {
            // The server may coalesce queued events into one frame,
            // separated by newlines.
            event.data.split('\n').forEach(function(line) {
                if (line !== '') handleEvent(JSON.parse(line));
            });
        };

        ws.onclose = function() {
            addLine('Connection closed', 'meta');
            named = false;
            setNamed('');
        };

        nameInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') claimName();
        });
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`

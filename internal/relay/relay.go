package relay

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/relaygram/server/internal/chatlog"
	"github.com/relaygram/server/internal/directory"
	"github.com/relaygram/server/internal/metrics"
	"github.com/relaygram/server/internal/model"
	"github.com/relaygram/server/internal/session"
)

// clientFrame is an inbound control message.
type clientFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Text      string `json:"text"`
}

// messageEvent carries a stored message to a peer.
type messageEvent struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

// errorEvent carries an error string to a peer.
type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Relay accepts duplex connections, binds them to authenticated identities
// and fans messages out to online recipients.
type Relay struct {
	registry  *Registry
	sessions  *session.Manager
	directory *directory.Directory
	chatlog   *chatlog.Log
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader
}

// New wires a relay over the shared stores.
func New(reg *Registry, sessions *session.Manager, dir *directory.Directory, chat *chatlog.Log, m *metrics.Metrics) *Relay {
	return &Relay{
		registry:  reg,
		sessions:  sessions,
		directory: dir,
		chatlog:   chat,
		metrics:   m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The HTTP layer already allows any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	c := newClient(r, conn)
	r.metrics.ActiveConnections.Inc()

	go c.writePump()
	c.readPump()
}

func (r *Relay) dispatch(c *Client, frame clientFrame) {
	switch frame.Type {
	case "register":
		r.handleRegister(c, frame)
	case "sendMessage":
		r.handleSend(c, frame)
	default:
		log.Printf("relay: unknown frame type %q", frame.Type)
	}
}

// handleRegister binds the connection to the identity behind the session
// token. An unresolvable token leaves the connection unbound; that is not an
// error on the wire, but it is worth a diagnostic.
func (r *Relay) handleRegister(c *Client, frame clientFrame) {
	phone, ok := r.sessions.Resolve(frame.SessionID)
	if !ok {
		log.Printf("relay: register with unknown session token")
		return
	}

	c.bind(frame.SessionID, phone)
	r.registry.Bind(frame.SessionID, c)
	log.Printf("relay: %s connected", phone)
}

// handleSend relays a message from a bound connection: the recipient is
// materialized in the directory, the message is durably appended, the sender
// gets its acknowledgment, and only then a best-effort live push is
// attempted. An offline recipient is not an error.
func (r *Relay) handleSend(c *Client, frame clientFrame) {
	_, from := c.identity()
	if from == "" {
		c.enqueue(errorEvent{Type: "error", Message: "not authorized"})
		return
	}
	if frame.To == "" {
		c.enqueue(errorEvent{Type: "error", Message: "recipient is required"})
		return
	}

	// Persistence must not be cancelled by the connection going away
	// mid-send, hence no request-scoped context here.
	ctx := context.Background()

	if _, err := r.directory.GetOrCreate(ctx, frame.To); err != nil {
		log.Printf("relay: create recipient %s: %v", frame.To, err)
		c.enqueue(errorEvent{Type: "error", Message: "failed to store message"})
		return
	}

	msg, err := r.chatlog.Append(ctx, from, frame.To, frame.Text)
	if err != nil {
		log.Printf("relay: append from %s: %v", from, err)
		c.enqueue(errorEvent{Type: "error", Message: "failed to store message"})
		return
	}
	r.metrics.MessagesRelayed.Inc()

	// Ack first: the durable append happened-before both events, and the
	// sender must never observe the push outrunning its own ack.
	c.enqueue(messageEvent{Type: "messageSent", Message: msg})

	delivered := false
	if token, ok := r.sessions.TokenFor(frame.To); ok {
		delivered = r.registry.Push(token, messageEvent{Type: "newMessage", Message: msg})
	}
	if delivered {
		r.metrics.PushesDelivered.Inc()
	} else {
		r.metrics.PushesMissed.Inc()
	}

	log.Printf("relay: message %s -> %s", from, frame.To)
}

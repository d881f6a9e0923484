package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound event buffer per connection. A peer that cannot drain this
	// fast enough starts missing pushes rather than blocking senders.
	sendBuffer = 64
)

// Client is one duplex connection. It starts unbound, becomes bound once a
// register frame carries a resolvable session token, and is torn down when
// the transport closes.
type Client struct {
	relay *Relay
	conn  *websocket.Conn

	send chan any
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	token string
	phone string
}

func newClient(r *Relay, conn *websocket.Conn) *Client {
	return &Client{
		relay: r,
		conn:  conn,
		send:  make(chan any, sendBuffer),
		done:  make(chan struct{}),
	}
}

// bind attaches the authenticated identity to the connection.
func (c *Client) bind(token, phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.phone = phone
}

// identity returns the bound token and phone number; both are empty while
// the connection is unbound.
func (c *Client) identity() (token, phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.phone
}

// enqueue offers an event to the write pump without ever blocking.
func (c *Client) enqueue(event any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// close makes the connection terminal: the registry binding is removed
// synchronously so the handle is never used for delivery again, then the
// write pump is released and the transport closed.
func (c *Client) close() {
	c.once.Do(func() {
		c.relay.registry.Unbind(c)
		close(c.done)
		c.conn.Close()
		c.relay.metrics.ActiveConnections.Dec()
		if _, phone := c.identity(); phone != "" {
			log.Printf("relay: %s disconnected", phone)
		}
	})
}

// readPump reads frames off the socket and dispatches them until the
// transport closes.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("relay: read error: %v", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("relay: bad frame: %v", err)
			continue
		}
		c.relay.dispatch(c, frame)
	}
}

// writePump serializes queued events onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

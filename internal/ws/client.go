package ws

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Client represents one connected WebSocket peer. Outbound frames go
// through a buffered channel drained by the write pump; Send never
// blocks the caller.
type Client struct {
	clientID string
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection under the given client id.
func NewClient(clientID string, conn *websocket.Conn) *Client {
	return &Client{
		clientID: clientID,
		conn:     conn,
		send:     make(chan []byte, 256),
	}
}

// ClientID returns the identifier assigned to this connection.
func (c *Client) ClientID() string { return c.clientID }

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn { return c.conn }

// SendChan returns the outbound queue for the write pump.
func (c *Client) SendChan() <-chan []byte { return c.send }

// Send queues raw data for delivery. A full buffer closes the client:
// a peer that cannot keep up is cut loose rather than blocking the
// broadcast path.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// SendFrame marshals and queues one frame.
func (c *Client) SendFrame(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Send(data)
}

// Close closes the outbound queue.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true once the outbound queue has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

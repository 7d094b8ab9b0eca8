package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conduit/pkg/agent"
)

// writeWait bounds a single frame write
const writeWait = 10 * time.Second

// ErrClientClosed is returned when writing to a disconnected client
var ErrClientClosed = errors.New("client connection closed")

// Client represents a connected WebSocket client. It is an agent.Sink.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string
	Limiter     *TurnLimiter

	writeMu  sync.Mutex
	seq      int64
	closed   atomic.Bool
	lastSeen atomic.Int64
}

// NewClient wraps an upgraded connection
func NewClient(id string, conn *websocket.Conn, ip string, limiter *TurnLimiter) *Client {
	now := time.Now()
	c := &Client{
		ID:          id,
		Conn:        conn,
		ConnectedAt: now,
		IPAddress:   ip,
		Limiter:     limiter,
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Touch records inbound activity
func (c *Client) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the client last sent a frame
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Write stamps the event with the next sequence number and a timestamp, then sends it.
// Writes are serialized so seq order matches wire order.
func (c *Client) Write(event agent.Event) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.seq++
	msg := EventMessage{
		Event:     event,
		ClientID:  c.ID,
		Seq:       c.seq,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.closed.Store(true)
		return err
	}
	if err := c.Conn.WriteJSON(msg); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

// Send implements agent.Sink
func (c *Client) Send(ctx context.Context, event agent.Event) error {
	return c.Write(event)
}

// Closed implements the optional closed check of agent.Sink
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Close marks the client closed and closes the connection
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

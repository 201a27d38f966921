package socket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"workchat/logger"
)

const writeDeadline = 5 * time.Second

// Client represents one live socket connection. A single user may have
// multiple devices/connections, each maintained separately. Outbound
// traffic goes through Send and is drained by a single writer goroutine,
// since gorilla/websocket does not allow concurrent writes.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new client connection object.
func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues data for delivery without blocking. It reports false when
// the connection is closed or its queue is full; the caller treats either
// as a dropped best-effort delivery.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close releases the writer goroutine. Safe to call more than once and
// concurrently with in-flight Enqueue calls.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump consumes the send queue and writes frames to the socket. It
// exits when Close is called or a write fails, and closes the underlying
// socket on the way out.
func (c *Client) WritePump() {
	defer func() {
		if c.WS != nil {
			_ = c.WS.Close()
		}
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.Send:
			if c.WS == nil {
				continue
			}
			if err := c.WS.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				logger.Infof("[client] set write deadline conn=%s err=%v", c.ConnID, err)
				return
			}
			if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Infof("[client] write failed conn=%s err=%v", c.ConnID, err)
				return
			}
		}
	}
}

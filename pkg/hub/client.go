package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Connection timing.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4 * 1024 // dashboards only send pongs and closes
)

// Conn is the part of a websocket connection a client uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one dashboard connection following a topic.
type Client struct {
	hub   *Hub
	conn  Conn
	topic string
	send  chan Message
	done  chan struct{} // closed when writeLoop returns
}

// NewClient registers conn with the hub. An empty topic follows every
// session. If the hub has already stopped the client starts closed.
func NewClient(h *Hub, conn Conn, topic string) *Client {
	c := &Client{
		hub:   h,
		conn:  conn,
		topic: topic,
		send:  make(chan Message, queueSize),
		done:  make(chan struct{}),
	}
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
	return c
}

// Run serves the connection until it closes. It returns only after the
// writer has stopped, so nothing touches conn once Run is done.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
	<-c.done
}

// readLoop drains inbound frames so pongs and closes are processed.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

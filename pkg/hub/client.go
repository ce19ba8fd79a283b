package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 1024

	// Events per client that may queue before it is evicted. A goal emits
	// one feedback event per control tick.
	sendBuffer = 64
)

// Client is one websocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	goalID string // "" follows every goal
	send   chan []byte
}

// NewClient registers a subscriber for goalID ("" for all goals). The hub
// must be running.
func NewClient(h *Hub, conn *websocket.Conn, goalID string) *Client {
	c := newClient(h, conn, goalID)
	h.register <- c
	return c
}

func newClient(h *Hub, conn *websocket.Conn, goalID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		goalID: goalID,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) wants(goalID string) bool {
	return c.goalID == "" || c.goalID == goalID
}

// Serve pumps frames to the connection until either side closes it.
// It blocks for the lifetime of the websocket handler.
func (c *Client) Serve() {
	go c.write()
	c.read()
}

// read discards client frames; it exists to process pongs and to notice
// the peer going away.
func (c *Client) read() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// write is the only goroutine writing to the connection.
func (c *Client) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

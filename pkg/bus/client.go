package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/teslashibe/go-cartdock/internal/log"
)

// ErrNotConnected is returned when the client has no connection.
var ErrNotConnected = errors.New("bus: not connected")

// Client provides a high-level interface to NATS for one robot.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	subjects *Subjects

	mu     sync.RWMutex
	conn   *nats.Conn
	closed bool
	subs   []*nats.Subscription

	// Stats
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	requestsFailed   atomic.Int64
	reconnectCount   atomic.Int64
}

// New creates a new NATS client.
// Call Connect() to establish the connection.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		cfg:      cfg,
		logger:   log.Or(logger).With("component", "bus"),
		subjects: NewSubjects(cfg.RobotID),
	}, nil
}

// Connect establishes the NATS connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}
	if c.conn != nil {
		return nil // Already connected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("connecting to NATS", "url", c.cfg.URL, "robot_id", c.cfg.RobotID)

	nc, err := nats.Connect(c.cfg.URL,
		nats.Name(c.cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.reconnectCount.Add(1)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", c.cfg.URL, err)
	}

	c.conn = nc
	c.logger.Info("connected to NATS", "url", c.cfg.URL)
	return nil
}

// Subjects returns the subjects helper.
func (c *Client) Subjects() *Subjects {
	return c.subjects
}

// Conn returns the underlying connection, or nil if not connected.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed && c.conn.IsConnected()
}

// Publish publishes raw data to a subject.
func (c *Client) Publish(subject string, data []byte) error {
	nc := c.Conn()
	if nc == nil {
		return ErrNotConnected
	}
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	c.messagesSent.Add(1)
	return nil
}

// PublishJSON encodes v and publishes it to a subject.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", subject, err)
	}
	return c.Publish(subject, data)
}

// Subscribe subscribes to a subject and calls handler for each message.
// The subscription is drained on Close.
func (c *Client) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	return c.subscribe(subject, func(m *nats.Msg) { handler(m.Data) })
}

// Handle subscribes a request handler. The handler is responsible for
// replying with msg.Respond.
func (c *Client) Handle(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return c.subscribe(subject, handler)
}

func (c *Client) subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		c.messagesReceived.Add(1)
		handler(m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)

	c.logger.Debug("subscribed to subject", "subject", subject)
	return sub, nil
}

// Request sends req as JSON and decodes the reply into resp. The call is
// bounded by ctx and RequestTimeout, whichever ends first.
func (c *Client) Request(ctx context.Context, subject string, req, resp any) error {
	nc := c.Conn()
	if nc == nil {
		return &RPCError{Subject: subject, Err: ErrNotConnected}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		c.requestsFailed.Add(1)
		return &RPCError{Subject: subject, Err: err}
	}
	c.messagesSent.Add(1)
	c.messagesReceived.Add(1)

	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		c.requestsFailed.Add(1)
		return &RPCError{Subject: subject, Err: fmt.Errorf("invalid reply: %w", err)}
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) &&
			!errors.Is(err, nats.ErrBadSubscription) {
			c.logger.Warn("error closing subscription", "subject", sub.Subject, "error", err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.conn.Close()
			c.conn = nil
			return fmt.Errorf("failed to drain connection: %w", err)
		}
		c.conn = nil
	}

	c.logger.Info("bus client closed")
	return nil
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Connected:        c.IsConnected(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		RequestsFailed:   c.requestsFailed.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected        bool  `json:"connected"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	RequestsFailed   int64 `json:"requests_failed"`
	ReconnectCount   int64 `json:"reconnect_count"`
}

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket session with the position feed. A Client is
// not reusable: once its session ends the Manager dials a new one.
type Client interface {
	// Connect dials the feed and starts reading.
	Connect(ctx context.Context) error

	// Close ends the session. It is safe to call more than once.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Frames delivers data frames in arrival order. It is closed after
	// the session ends and every buffered frame has been queued.
	Frames() <-chan Frame

	// Done is closed when the session ends.
	Done() <-chan struct{}

	// Err reports why the session ended. It is nil while the session is
	// live and after a clean Close.
	Err() error

	IsConnected() bool
	Stats() ClientStats
}

// ClientStats describes one session.
type ClientStats struct {
	Received int64     `json:"received"`
	Dropped  int64     `json:"dropped"`
	LastSeen time.Time `json:"last_seen"` // Last frame of any kind, pings included
}

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	frames chan Frame
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	err       error

	lastSeen atomic.Int64
	received atomic.Int64
	dropped  atomic.Int64
}

// NewClient returns an unconnected client. Zero config fields take their
// defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	closed, dialed := c.closed, c.conn != nil
	c.mu.Unlock()
	if closed {
		return ErrAlreadyClosed
	}
	if dialed {
		return errors.New("already connected")
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	conn.SetPingHandler(func(data string) error {
		c.touch(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		c.touch(conn)
		return nil
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.touch(conn)
	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		// No read loop to close these.
		close(c.frames)
		close(c.done)
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (c *client) Send(data []byte) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Frames() <-chan Frame  { return c.frames }
func (c *client) Done() <-chan struct{} { return c.done }

func (c *client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *client) Stats() ClientStats {
	var last time.Time
	if ns := c.lastSeen.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return ClientStats{
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
		LastSeen: last,
	}
}

// touch records activity and pushes the read deadline out. Any frame,
// control or data, counts as a sign of life.
func (c *client) touch(conn *websocket.Conn) {
	now := time.Now()
	c.lastSeen.Store(now.UnixNano())
	conn.SetReadDeadline(now.Add(c.cfg.PingTimeout))
}

func (c *client) readLoop(conn *websocket.Conn) {
	var cause error
	defer func() {
		c.mu.Lock()
		c.connected = false
		if !c.closed {
			c.err = cause
		}
		c.mu.Unlock()

		close(c.frames)
		close(c.done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cause = classifyReadError(err)
			return
		}

		frame := Frame{Data: data, ReceivedAt: time.Now()}
		c.touch(conn)
		c.received.Add(1)

		select {
		case c.frames <- frame:
		default:
			c.dropped.Add(1)
			c.logger.Warn("frame buffer full, dropping frame", "bytes", len(data))
		}
	}
}

func classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrStaleConnection, err)
	}
	return err
}

// pingLoop keeps the server side of the session alive. Liveness of our
// side is enforced by the read deadline.
func (c *client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

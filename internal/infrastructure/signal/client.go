package signal

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"desklink/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const receiveQueueSize = 64

// ClientConfig holds the relay endpoint and reconnect tuning.
type ClientConfig struct {
	URL          string // ws://host:port/ws
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Client keeps one websocket to the relay alive, redialing with
// exponential backoff. It implements the signal bus: Receive stays
// open across reconnects and closes only when the client shuts down.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn

	in     chan domain.SignalEnvelope
	done   chan struct{}
	closed sync.Once
}

func NewClient(cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
		in:     make(chan domain.SignalEnvelope, receiveQueueSize),
		done:   make(chan struct{}),
	}
}

// Run dials the relay and pumps inbound envelopes until the context
// ends or Close is called.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.in)

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	backoff := c.cfg.ReconnectMin
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			c.logger.Warnw("relay dial failed", "error", err, "retry_in", backoff)
			if !c.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
			continue
		}

		c.logger.Infow("relay connected", "url", c.cfg.URL)
		backoff = c.cfg.ReconnectMin
		c.setConn(conn)

		err = c.readPump(ctx, conn)
		c.setConn(nil)
		conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}
		c.logger.Warnw("relay connection lost", "error", err, "retry_in", backoff)
		if !c.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
	}
}

// readPump feeds inbound envelopes into the receive queue until the
// connection breaks.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPingHandler(func(message string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(c.cfg.WriteTimeout))
	})

	for {
		var env domain.SignalEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		select {
		case c.in <- env:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		}
	}
}

// Send writes one envelope to the relay. Fails when the connection is
// currently down; negotiation retries are the caller's concern.
func (c *Client) Send(_ context.Context, env domain.SignalEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return domain.ErrSignalingClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s envelope: %w", env.Type, err)
	}
	return nil
}

func (c *Client) Receive() <-chan domain.SignalEnvelope { return c.in }

func (c *Client) Close() error {
	c.closed.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) endpoint() (string, error) {
	parsed, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	query := parsed.Query()
	query.Set("token", c.cfg.Token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// nextBackoff doubles the delay up to max, with jitter in [0.75, 1.25)
// so a fleet of agents does not redial in lockstep.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	jitter := next / 4
	return next - jitter + time.Duration(rand.Int63n(int64(2*jitter)+1))
}

package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/proctor"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultBuffer           = 16
	closeGracePeriod        = time.Second
)

type Options struct {
	URL string
	// Token is sent as a bearer token during the handshake. TokenFunc is consulted when Token is empty.
	Token     string
	TokenFunc func() (string, error)

	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single frame write on a stalled connection.
	WriteTimeout time.Duration
	Buffer       int
	Logger           core.Logger
}

// Channel is a single websocket connection to the verification service.
// It never reconnects: once the connection is lost it reports disconnected until closed.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	writeMu   sync.Mutex
	responses chan proctor.VerificationResponse
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
	respOnce  sync.Once
}

var _ proctor.Channel = (*Channel)(nil)

func New(opts Options) *Channel {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	return &Channel{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		responses: make(chan proctor.VerificationResponse, opts.Buffer),
		done:      make(chan struct{}),
	}
}

func (c *Channel) header() (http.Header, error) {
	token := c.opts.Token
	if token == "" && c.opts.TokenFunc != nil {
		var err error
		if token, err = c.opts.TokenFunc(); err != nil {
			return nil, errors.Wrap(err, "issuing channel token")
		}
	}
	if token == "" {
		return nil, nil
	}
	return http.Header{"Authorization": {"Bearer " + token}}, nil
}

// Open dials the verification service. Calling it on an open channel is a no-op.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return proctor.ErrChannelClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header, err := c.header()
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "dialing %s: status %d", c.opts.URL, resp.StatusCode)
		}
		return errors.Wrapf(err, "dialing %s", c.opts.URL)
	}

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		if c.closed {
			return proctor.ErrChannelClosed
		}
		return nil
	}
	c.conn = conn
	c.connected = true
	c.pumpDone = make(chan struct{})
	go c.readPump(conn, c.pumpDone)
	c.mu.Unlock()

	c.logInfo("verification channel connected: " + c.opts.URL)
	return nil
}

// Send writes one frame. It fails fast with proctor.ErrNotConnected so the caller can drop the frame.
func (c *Channel) Send(f proctor.FrameEmission) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return proctor.ErrChannelClosed
	}
	if !c.connected {
		c.mu.Unlock()
		return proctor.ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err == nil {
		err = conn.WriteJSON(f)
	}
	c.writeMu.Unlock()
	if err != nil {
		c.setDisconnected()
		return errors.Wrap(err, "writing frame")
	}
	return nil
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Responses delivers parsed responses in arrival order. It is closed once the connection is gone.
func (c *Channel) Responses() <-chan proctor.VerificationResponse {
	return c.responses
}

func (c *Channel) readPump(conn *websocket.Conn, pumpDone chan<- struct{}) {
	defer close(pumpDone)
	defer c.closeResponses()
	defer c.setDisconnected()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.logWarn(fmt.Sprintf("verification channel lost: %v", err), err)
			}
			return
		}
		resp, err := proctor.ParseResponse(msg)
		if err != nil {
			c.logWarn(fmt.Sprintf("dropping malformed verification response: %v", err), err)
			continue
		}
		select {
		case c.responses <- resp:
		case <-c.done:
			return
		}
	}
}

// Close shuts the connection down. Only the first call has any effect.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.connected = false
		conn, pumpDone := c.conn, c.pumpDone
		c.mu.Unlock()
		close(c.done)

		if conn == nil {
			c.closeResponses()
			return
		}
		// WriteControl may run alongside a stalled Send; closing the conn then releases it.
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		err = conn.Close()
		<-pumpDone
	})
	return err
}

func (c *Channel) setDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) closeResponses() {
	c.respOnce.Do(func() { close(c.responses) })
}

func (c *Channel) logInfo(msg string) {
	if c.opts.Logger != nil {
		c.opts.Logger.Info(msg)
	}
}

func (c *Channel) logWarn(msg string, args ...interface{}) {
	if c.opts.Logger != nil {
		c.opts.Logger.Warn(msg, args...)
	}
}

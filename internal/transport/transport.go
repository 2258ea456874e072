// Package transport owns the message-oriented duplex connection to the
// assistant worker.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codeweiz/prismata/internal/logging"
)

var (
	// ErrConnectFailed means the socket could not be opened. Retryable by
	// dialing again.
	ErrConnectFailed = errors.New("connect failed")
	// ErrNotConnected means a send was attempted, or a pending request was
	// invalidated, while no connection is open.
	ErrNotConnected = errors.New("not connected")
)

// State represents the connection state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// CloseReason says why the connection terminated.
type CloseReason string

const (
	ReasonClean     CloseReason = "clean_close"
	ReasonError     CloseReason = "error"
	ReasonPeerReset CloseReason = "peer_reset"
)

const closeGrace = time.Second

// Conn is one duplex connection to the worker. At most one live Conn per
// session; enforcing that is the session's job. Safe for concurrent Send.
type Conn struct {
	endpoint string
	ws       *websocket.Conn

	writeMu sync.Mutex // serializes writes to the socket

	mu         sync.Mutex
	state      State
	localClose bool
	reason     CloseReason
	reasonErr  error

	messages chan []byte
	done     chan struct{}
}

// Dial opens a WebSocket connection to endpoint (ws://host:port) and
// starts the read pump. Fails with ErrConnectFailed.
func Dial(ctx context.Context, endpoint string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, endpoint, err)
	}

	c := &Conn{
		endpoint: endpoint,
		ws:       ws,
		state:    StateOpen,
		messages: make(chan []byte, 32),
		done:     make(chan struct{}),
	}
	go c.readPump()

	logging.Debug().Str("endpoint", endpoint).Msg("transport connected")
	return c, nil
}

// Endpoint returns the dialed address.
func (c *Conn) Endpoint() string { return c.endpoint }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns the inbound message stream. The channel is closed when
// the connection terminates.
func (c *Conn) Messages() <-chan []byte { return c.messages }

// Done is closed when the connection has terminated for any reason.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Reason reports why the connection closed. Only meaningful after Done.
func (c *Conn) Reason() (CloseReason, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason, c.reasonErr
}

// Send writes one message to the worker. Fails with ErrNotConnected on a
// closed connection rather than silently dropping.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
		defer func() { _ = c.ws.SetWriteDeadline(time.Time{}) }()
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Close performs a clean close handshake. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.localClose || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.localClose = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace),
	)
	c.writeMu.Unlock()

	err := c.ws.Close()

	// Wait for the read pump to observe the close so Done is guaranteed
	// closed when Close returns.
	select {
	case <-c.done:
	case <-time.After(closeGrace):
	}
	return err
}

// readPump feeds Messages until the socket errors, then records the close
// reason and signals termination.
func (c *Conn) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.state = StateClosed
			switch {
			case c.localClose,
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.reason = ReasonClean
			case errors.Is(err, net.ErrClosed),
				strings.Contains(err.Error(), "connection reset"):
				c.reason, c.reasonErr = ReasonPeerReset, err
			default:
				c.reason, c.reasonErr = ReasonError, err
			}
			reason := c.reason
			c.mu.Unlock()

			logging.Debug().Str("endpoint", c.endpoint).
				Str("reason", string(reason)).
				Msg("transport disconnected")
			close(c.messages)
			close(c.done)
			return
		}
		c.messages <- data
	}
}

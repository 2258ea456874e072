// Package correlator matches outgoing requests with their eventual
// responses. Correlation is solely by id, never by send order: responses
// may arrive in any order relative to requests.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeweiz/prismata/internal/logging"
	"github.com/codeweiz/prismata/internal/protocol"
	"github.com/codeweiz/prismata/internal/transport"
)

// ErrTimeout means no response arrived within the configured window.
// Retryable.
var ErrTimeout = errors.New("request timed out")

// RemoteError is a structured application-level error returned by the
// worker. It carries the worker's category/severity/recovery payload.
type RemoteError struct {
	Payload *protocol.ResponseError
}

func (e *RemoteError) Error() string {
	if e.Payload.Code != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Payload.Code, e.Payload.Message)
	}
	return "remote error: " + e.Payload.Message
}

type result struct {
	resp *protocol.Response
	err  error
}

// pending is one outstanding round-trip. The channel is buffered so the
// run loop never blocks on resolution; each entry resolves exactly once
// because it is removed from the table before the send.
type pending struct {
	method  string
	created time.Time
	ch      chan result
}

// Correlator owns the pending-request table for one connection. The table
// is the single source of truth: no assumption of wire ordering.
type Correlator struct {
	conn *transport.Conn
	log  zerolog.Logger

	nextID atomic.Int64

	mu      sync.Mutex
	table   map[string]*pending
	stopped bool
}

// New creates a correlator bound to conn. Call Run in a goroutine to start
// dispatching inbound messages.
func New(conn *transport.Conn) *Correlator {
	return &Correlator{
		conn:  conn,
		log:   logging.Component("correlator"),
		table: make(map[string]*pending),
	}
}

// Run consumes inbound messages until the connection terminates, then
// fails every pending request with ErrNotConnected. No request is left to
// time out silently after a known disconnect.
func (c *Correlator) Run() {
	for data := range c.conn.Messages() {
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn().Err(err).Msg("discarding unparseable message")
			continue
		}
		c.dispatch(&resp)
	}
	c.FailAll(transport.ErrNotConnected)
}

// dispatch resolves the matching pending request, exactly once. Responses
// for unknown or already-consumed ids are discarded safely: a late reply
// after timeout or cancellation lands here.
func (c *Correlator) dispatch(resp *protocol.Response) {
	c.mu.Lock()
	p, ok := c.table[resp.ID]
	if ok {
		delete(c.table, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Str("id", resp.ID).Msg("discarding response for unknown id")
		return
	}
	p.ch <- result{resp: resp}
}

// remove drops a pending entry, if still present, without resolving it.
func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.table, id)
	c.mu.Unlock()
}

// FailAll rejects every pending request with err and empties the table.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	stopped := c.stopped
	c.stopped = true
	table := c.table
	c.table = make(map[string]*pending)
	c.mu.Unlock()

	if stopped && len(table) == 0 {
		return
	}
	for id, p := range table {
		c.log.Debug().Str("id", id).Str("method", p.method).Msg("failing pending request")
		p.ch <- result{err: err}
	}
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// Call sends one request and suspends the caller until the matching
// response arrives, the timeout fires, the connection drops, or ctx is
// cancelled. Errors: ErrTimeout, *RemoteError, transport.ErrNotConnected,
// or the ctx error.
//
// Cancellation removes the pending entry and rejects locally; it never
// un-sends a request the worker may still act on. The late response is
// discarded by dispatch.
func (c *Correlator) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, transport.ErrNotConnected
	}
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	p := &pending{method: method, created: time.Now(), ch: make(chan result, 1)}
	c.table[id] = p
	c.mu.Unlock()

	data, err := json.Marshal(protocol.NewRequest(id, method, params))
	if err != nil {
		c.remove(id)
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := c.conn.Send(ctx, data); err != nil {
		c.remove(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != nil {
			return nil, &RemoteError{Payload: r.resp.Error}
		}
		return r.resp.Result, nil
	case <-timer.C:
		c.remove(id)
		c.log.Debug().Str("id", id).Str("method", method).Msg("request timed out")
		return nil, ErrTimeout
	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

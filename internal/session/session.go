// Package session wires the transport, supervisor, correlator, ledger and
// recovery engine into the single façade the host environment talks to.
//
// Sessions are constructed explicitly and passed to callers; there is no
// package-level instance. A host that wants one shared session owns that
// decision itself.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/codeweiz/prismata/internal/correlator"
	"github.com/codeweiz/prismata/internal/event"
	"github.com/codeweiz/prismata/internal/ledger"
	"github.com/codeweiz/prismata/internal/logging"
	"github.com/codeweiz/prismata/internal/protocol"
	"github.com/codeweiz/prismata/internal/recovery"
	"github.com/codeweiz/prismata/internal/supervisor"
	"github.com/codeweiz/prismata/internal/transport"
	"github.com/codeweiz/prismata/pkg/types"
)

var (
	// ErrSessionNotReady means invoke/retry/recover was called outside the
	// ready state.
	ErrSessionNotReady = errors.New("session not ready")
	// ErrAlreadyStarted means Start was called while the session is
	// starting or ready. A second connection is never created while one
	// is open.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrStopped means Stop was called while Start was still connecting;
	// the aborted Start releases whatever it had opened.
	ErrStopped = errors.New("session stopped during start")
)

// State is the session lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
)

const stopGrace = 5 * time.Second

// ConnectionChange is the payload of connection.state events.
type ConnectionChange struct {
	State  transport.State       `json:"state"`
	Reason transport.CloseReason `json:"reason,omitempty"`
}

// Session supervises one worker and orchestrates every operation
// dispatched to it.
type Session struct {
	cfg    *types.Config
	bus    *event.Bus
	ledger *ledger.Ledger
	log    zerolog.Logger

	mu     sync.Mutex
	state  State
	gen    uint64
	conn   *transport.Conn
	corr   *correlator.Correlator
	engine *recovery.Engine
	worker *supervisor.Worker
}

// Option configures a Session.
type Option func(*Session)

// WithBus injects a shared event bus instead of a per-session one.
func WithBus(bus *event.Bus) Option {
	return func(s *Session) { s.bus = bus }
}

// New creates a stopped session for the given configuration.
func New(cfg *types.Config, opts ...Option) *Session {
	s := &Session{
		cfg:   cfg,
		state: StateStopped,
		log:   logging.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = event.NewBus()
	}
	s.ledger = ledger.New(cfg.MaxHistory(), s.bus)
	return s
}

// Events returns the session's event bus.
func (s *Session) Events() *event.Bus { return s.bus }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ledger exposes the operation ledger for read access.
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

// Start spawns the worker when configured, opens the connection, and
// transitions the session to ready. Fails with supervisor.ErrSpawn or
// transport.ErrConnectFailed; either leaves the session stopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.publishState(StateStarting)

	var worker *supervisor.Worker
	if s.cfg.AutoStart && s.cfg.WorkerPath != "" {
		w, err := supervisor.Start(supervisor.Spec{
			Path: s.cfg.WorkerPath,
			Args: s.cfg.WorkerArgs,
			Dir:  s.cfg.WorkerDir,
		})
		if err != nil {
			s.setStopped(gen)
			return err
		}
		worker = w
	}

	host, port := s.cfg.Endpoint()
	endpoint := fmt.Sprintf("ws://%s:%d", host, port)

	conn, err := s.dial(ctx, endpoint, worker != nil)
	if err != nil {
		if worker != nil {
			_ = worker.Stop(stopGrace)
		}
		s.setStopped(gen)
		return err
	}

	corr := correlator.New(conn)
	go corr.Run()

	s.mu.Lock()
	if s.state != StateStarting || s.gen != gen {
		// Stop intervened while we were connecting; release what we
		// opened rather than resurrecting a session the caller shut down.
		s.mu.Unlock()
		_ = conn.Close()
		if worker != nil {
			_ = worker.Stop(stopGrace)
		}
		return ErrStopped
	}
	s.conn, s.corr, s.worker = conn, corr, worker
	s.engine = recovery.New(s.ledger, corr, s.cfg.CallTimeout())
	s.state = StateReady
	s.mu.Unlock()

	go s.watch(conn, worker)

	s.log.Info().Str("endpoint", endpoint).Bool("spawned", worker != nil).Msg("session ready")
	s.publishState(StateReady)
	return nil
}

// dial opens the connection. When this session spawned the worker it keeps
// retrying inside the start window while the worker comes up; against an
// externally-managed worker one attempt is made and ConnectError surfaces
// directly.
func (s *Session) dial(ctx context.Context, endpoint string, spawned bool) (*transport.Conn, error) {
	if !spawned {
		return transport.Dial(ctx, endpoint)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = s.cfg.StartTimeout()

	return backoff.RetryWithData(func() (*transport.Conn, error) {
		return transport.Dial(ctx, endpoint)
	}, backoff.WithContext(bo, ctx))
}

// watch forces the session down on connection loss or unexpected worker
// exit. Closing the connection makes the correlator reject every pending
// request with NotConnected immediately, not after their timeouts.
func (s *Session) watch(conn *transport.Conn, worker *supervisor.Worker) {
	var workerExit <-chan struct{}
	if worker != nil {
		workerExit = worker.Exit()
	}

	select {
	case <-conn.Done():
		reason, _ := conn.Reason()
		s.bus.PublishSync(event.Event{
			Type: event.ConnectionState,
			Data: ConnectionChange{State: transport.StateClosed, Reason: reason},
		})
	case <-workerExit:
		status := worker.ExitStatus()
		s.log.Warn().Int("code", status.Code).Str("signal", status.Signal).
			Msg("worker exited unexpectedly")
		s.bus.PublishSync(event.Event{Type: event.ProcessExited, Data: status})
		_ = conn.Close()
	}

	s.teardown(conn)
}

// teardown transitions to stopped unless this watcher's connection has
// already been replaced or cleaned up.
func (s *Session) teardown(conn *transport.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	worker := s.worker
	s.conn, s.corr, s.worker, s.engine = nil, nil, nil, nil
	s.state = StateStopped
	s.mu.Unlock()

	_ = conn.Close()
	if worker != nil {
		_ = worker.Stop(stopGrace)
	}
	s.publishState(StateStopped)
}

// Stop closes the connection and terminates a spawned worker. Idempotent.
// Stopping while a Start is still connecting makes that Start abort with
// ErrStopped instead of reaching ready.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	conn, worker := s.conn, s.worker
	s.conn, s.corr, s.worker, s.engine = nil, nil, nil, nil
	s.state = StateStopped
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if worker != nil {
		_ = worker.Stop(stopGrace)
	}
	s.log.Info().Msg("session stopped")
	s.publishState(StateStopped)
	return nil
}

// Invoke dispatches one unit of work to the worker and records it on the
// ledger. Only valid in the ready state. The returned result is the
// worker's result payload verbatim.
func (s *Session) Invoke(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrSessionNotReady
	}
	corr := s.corr
	s.mu.Unlock()

	raw, err := protocol.RawParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	op := s.ledger.Begin(method, raw)
	_ = s.ledger.MarkInProgress(op.ID)

	result, err := corr.Call(ctx, method, params, s.cfg.CallTimeout())
	if err != nil {
		rec := recovery.Classify(err)
		if lerr := s.ledger.Fail(op.ID, rec); lerr != nil {
			s.log.Warn().Err(lerr).Str("operation", op.ID).Msg("recording failure")
		}
		return nil, err
	}

	if lerr := s.ledger.Complete(op.ID, result); lerr != nil {
		s.log.Warn().Err(lerr).Str("operation", op.ID).Msg("recording completion")
	}
	return result, nil
}

// GetOperation returns the recorded operation, or ledger.ErrNotFound.
func (s *Session) GetOperation(id string) (*types.Operation, error) {
	return s.ledger.Get(id)
}

// ListOperations returns recorded operations newest-first.
func (s *Session) ListOperations(f ledger.Filter, limit, offset int) []*types.Operation {
	return s.ledger.List(f, limit, offset)
}

// Retry re-issues a failed operation with its original parameters.
func (s *Session) Retry(ctx context.Context, operationID string) (json.RawMessage, error) {
	engine, err := s.readyEngine()
	if err != nil {
		return nil, err
	}
	return engine.Retry(ctx, operationID)
}

// Recover executes a named recovery strategy for a failed operation.
func (s *Session) Recover(ctx context.Context, operationID, strategy string) (json.RawMessage, error) {
	engine, err := s.readyEngine()
	if err != nil {
		return nil, err
	}
	return engine.Recover(ctx, operationID, strategy)
}

func (s *Session) readyEngine() (*recovery.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.engine == nil {
		return nil, ErrSessionNotReady
	}
	return s.engine, nil
}

// setStopped rolls a failed Start back to stopped. It stands down when the
// session moved on in the meantime, either through Stop (already stopped
// and published) or a newer Start.
func (s *Session) setStopped(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.mu.Unlock()
	s.publishState(StateStopped)
}

func (s *Session) publishState(state State) {
	s.bus.PublishSync(event.Event{Type: event.SessionState, Data: state})
}

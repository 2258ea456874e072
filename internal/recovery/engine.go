package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeweiz/prismata/internal/ledger"
	"github.com/codeweiz/prismata/internal/logging"
	"github.com/codeweiz/prismata/internal/protocol"
	"github.com/codeweiz/prismata/pkg/types"
)

var (
	// ErrNotRetryable means retry was attempted on an operation whose
	// failure is fatal, or that is not in the error state.
	ErrNotRetryable = errors.New("operation not retryable")
	// ErrUnknownStrategy means the named strategy is not among the ones
	// offered on the operation's current error record.
	ErrUnknownStrategy = errors.New("unknown recovery strategy")
)

// Caller dispatches one request to the worker. Satisfied by the
// correlator.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Engine executes retry and recover actions over ledger entries. The core
// never retries on its own; every re-issue is an explicit call here.
type Engine struct {
	ledger  *ledger.Ledger
	caller  Caller
	timeout time.Duration
	log     zerolog.Logger
}

// New creates an engine issuing requests through caller with the given
// per-request timeout.
func New(l *ledger.Ledger, caller Caller, timeout time.Duration) *Engine {
	return &Engine{
		ledger:  l,
		caller:  caller,
		timeout: timeout,
		log:     logging.Component("recovery"),
	}
}

// Retry re-issues the original request with the exact same parameters
// under the same operation id. Only valid from the error state; fails
// with ErrNotRetryable when the recorded severity is fatal.
func (e *Engine) Retry(ctx context.Context, operationID string) (json.RawMessage, error) {
	op, err := e.ledger.Get(operationID)
	if err != nil {
		return nil, err
	}
	if op.Status != types.StatusError {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, op.Status)
	}
	if op.Error != nil && op.Error.Severity.Fatal() {
		return nil, fmt.Errorf("%w: failure is fatal", ErrNotRetryable)
	}

	if err := e.ledger.Reopen(operationID); err != nil {
		return nil, err
	}
	e.log.Info().Str("operation", operationID).Str("method", op.Type).Msg("retrying operation")

	return e.finish(ctx, operationID, op.Type, json.RawMessage(op.Params))
}

// Recover dispatches the named recovery strategy to the worker and applies
// its outcome exactly as a normal completion or failure. The strategy must
// be among the ones offered on the operation's current error record.
func (e *Engine) Recover(ctx context.Context, operationID, strategy string) (json.RawMessage, error) {
	op, err := e.ledger.Get(operationID)
	if err != nil {
		return nil, err
	}
	if op.Status != types.StatusError || op.Error == nil {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRetryable, op.Status)
	}
	if !op.Error.Offered(strategy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	// Record the choice before the error record moves to the audit trail.
	if err := e.ledger.MarkStrategy(operationID, strategy); err != nil {
		return nil, err
	}
	if err := e.ledger.Reopen(operationID); err != nil {
		return nil, err
	}
	e.log.Info().Str("operation", operationID).Str("strategy", strategy).Msg("recovering operation")

	params := protocol.RecoverParams{OperationID: operationID, Strategy: strategy}
	return e.finish(ctx, operationID, protocol.MethodRecoverOperation, params)
}

// finish runs the wire call and records its terminal outcome.
func (e *Engine) finish(ctx context.Context, operationID, method string, params any) (json.RawMessage, error) {
	result, err := e.caller.Call(ctx, method, params, e.timeout)
	if err != nil {
		rec := Classify(err)
		if lerr := e.ledger.Fail(operationID, rec); lerr != nil {
			e.log.Warn().Err(lerr).Str("operation", operationID).Msg("recording failure")
		}
		return nil, err
	}
	if lerr := e.ledger.Complete(operationID, result); lerr != nil {
		e.log.Warn().Err(lerr).Str("operation", operationID).Msg("recording completion")
	}
	return result, nil
}

package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeweiz/prismata/internal/correlator"
	"github.com/codeweiz/prismata/internal/ledger"
	"github.com/codeweiz/prismata/internal/protocol"
	"github.com/codeweiz/prismata/pkg/types"
)

// fakeCaller records what was dispatched and plays back a scripted
// response.
type fakeCaller struct {
	method string
	params any
	result json.RawMessage
	err    error
}

func (f *fakeCaller) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	f.method = method
	f.params = params
	return f.result, f.err
}

func failedOp(t *testing.T, l *ledger.Ledger, rec *types.ErrorRecord) string {
	t.Helper()
	op := l.Begin("generate_code", json.RawMessage(`{"prompt":"original"}`))
	require.NoError(t, l.MarkInProgress(op.ID))
	require.NoError(t, l.Fail(op.ID, rec))
	return op.ID
}

func retryableRecord() *types.ErrorRecord {
	return &types.ErrorRecord{
		Message:  "timed out",
		Category: types.CategoryNetwork,
		Severity: types.SeverityWarning,
		RecoveryOptions: []types.RecoveryStrategy{
			{Name: RetryStrategy},
			{Name: "regenerate"},
		},
	}
}

func TestRetryReplaysOriginalParams(t *testing.T) {
	l := ledger.New(10, nil)
	caller := &fakeCaller{result: json.RawMessage(`{"code":"fixed"}`)}
	e := New(l, caller, time.Second)

	id := failedOp(t, l, retryableRecord())

	result, err := e.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, `{"code":"fixed"}`, string(result))

	// Same method, byte-identical params, same operation id
	assert.Equal(t, "generate_code", caller.method)
	assert.Equal(t, `{"prompt":"original"}`, string(caller.params.(json.RawMessage)))

	op, _ := l.Get(id)
	assert.Equal(t, types.StatusCompleted, op.Status)
	require.Len(t, op.ErrorHistory, 1)
	assert.Equal(t, "timed out", op.ErrorHistory[0].Message)
}

func TestRetryFailureRecordsNewError(t *testing.T) {
	l := ledger.New(10, nil)
	caller := &fakeCaller{err: correlator.ErrTimeout}
	e := New(l, caller, time.Second)

	id := failedOp(t, l, retryableRecord())

	_, err := e.Retry(context.Background(), id)
	assert.ErrorIs(t, err, correlator.ErrTimeout)

	op, _ := l.Get(id)
	assert.Equal(t, types.StatusError, op.Status)
	require.NotNil(t, op.Error)
	assert.Equal(t, types.CategoryNetwork, op.Error.Category)
	assert.Len(t, op.ErrorHistory, 1)
}

func TestRetryRejectsNonErrorStates(t *testing.T) {
	l := ledger.New(10, nil)
	e := New(l, &fakeCaller{}, time.Second)

	op := l.Begin("analyze_code", nil)
	_, err := e.Retry(context.Background(), op.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)

	require.NoError(t, l.MarkInProgress(op.ID))
	require.NoError(t, l.Complete(op.ID, nil))
	_, err = e.Retry(context.Background(), op.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestRetryRejectsFatalFailure(t *testing.T) {
	l := ledger.New(10, nil)
	e := New(l, &fakeCaller{}, time.Second)

	id := failedOp(t, l, &types.ErrorRecord{
		Message:  "unrecoverable",
		Category: types.CategoryFileSystem,
		Severity: types.SeverityCritical,
	})

	_, err := e.Retry(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotRetryable)

	// Untouched: still in error with its record intact
	op, _ := l.Get(id)
	assert.Equal(t, types.StatusError, op.Status)
	assert.NotNil(t, op.Error)
}

func TestRetryUnknownOperation(t *testing.T) {
	l := ledger.New(10, nil)
	e := New(l, &fakeCaller{}, time.Second)

	_, err := e.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRecoverDispatchesStrategy(t *testing.T) {
	l := ledger.New(10, nil)
	caller := &fakeCaller{result: json.RawMessage(`{"recovered":true}`)}
	e := New(l, caller, time.Second)

	id := failedOp(t, l, retryableRecord())

	result, err := e.Recover(context.Background(), id, "regenerate")
	require.NoError(t, err)
	assert.Equal(t, `{"recovered":true}`, string(result))

	assert.Equal(t, protocol.MethodRecoverOperation, caller.method)
	params := caller.params.(protocol.RecoverParams)
	assert.Equal(t, id, params.OperationID)
	assert.Equal(t, "regenerate", params.Strategy)

	op, _ := l.Get(id)
	assert.Equal(t, types.StatusCompleted, op.Status)
	require.Len(t, op.ErrorHistory, 1)
	assert.Equal(t, "regenerate", op.ErrorHistory[0].ChosenStrategy)
}

func TestRecoverRejectsUnofferedStrategy(t *testing.T) {
	l := ledger.New(10, nil)
	e := New(l, &fakeCaller{}, time.Second)

	id := failedOp(t, l, retryableRecord())

	_, err := e.Recover(context.Background(), id, "reboot-universe")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	op, _ := l.Get(id)
	assert.Equal(t, types.StatusError, op.Status)
}

func TestRecoverStrategyScopedToItsOperation(t *testing.T) {
	// "regenerate" is on offer for one failure but not the other; the
	// offer never transfers between operations.
	l := ledger.New(10, nil)
	caller := &fakeCaller{result: json.RawMessage(`{"recovered":true}`)}
	e := New(l, caller, time.Second)

	withRegenerate := failedOp(t, l, retryableRecord())
	retryOnly := failedOp(t, l, &types.ErrorRecord{
		Message:         "timed out",
		Category:        types.CategoryNetwork,
		Severity:        types.SeverityWarning,
		RecoveryOptions: []types.RecoveryStrategy{{Name: RetryStrategy}},
	})

	_, err := e.Recover(context.Background(), retryOnly, "regenerate")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	op, _ := l.Get(retryOnly)
	assert.Equal(t, types.StatusError, op.Status)

	_, err = e.Recover(context.Background(), withRegenerate, "regenerate")
	require.NoError(t, err)
}

func TestRecoverRejectsNonErrorStates(t *testing.T) {
	l := ledger.New(10, nil)
	e := New(l, &fakeCaller{}, time.Second)

	op := l.Begin("read_file", nil)
	_, err := e.Recover(context.Background(), op.ID, RetryStrategy)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

// Package ledger records every dispatched unit of work for the lifetime of
// the session and exposes query/reopen operations over that record.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codeweiz/prismata/internal/event"
	"github.com/codeweiz/prismata/pkg/types"
)

var (
	// ErrNotFound means the operation id is unknown.
	ErrNotFound = errors.New("operation not found")
	// ErrTerminal means a completed operation was asked to change state.
	ErrTerminal = errors.New("operation already completed")
	// ErrInvalidTransition means the requested status change violates the
	// lifecycle: pending -> in_progress -> completed|error, with
	// error -> in_progress allowed only via Reopen.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type   string
	Status types.OperationStatus
}

// Ledger is the in-memory operation record. Entries are never deleted by
// content or age; the only removal path is capacity eviction of the oldest
// terminal entries.
type Ledger struct {
	mu    sync.Mutex
	ops   map[string]*types.Operation
	order []string // creation order, oldest first
	max   int
	bus   *event.Bus
}

// New creates a ledger holding at most max entries. bus may be nil.
func New(max int, bus *event.Bus) *Ledger {
	if max <= 0 {
		max = types.DefaultHistoryLimit
	}
	return &Ledger{
		ops: make(map[string]*types.Operation),
		max: max,
		bus: bus,
	}
}

// Begin records a new pending operation and returns a copy of it.
func (l *Ledger) Begin(opType string, params json.RawMessage) *types.Operation {
	now := time.Now()
	op := &types.Operation{
		ID:        ulid.Make().String(),
		Type:      opType,
		Status:    types.StatusPending,
		Params:    append(json.RawMessage(nil), params...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	l.mu.Lock()
	l.ops[op.ID] = op
	l.order = append(l.order, op.ID)
	l.evictLocked()
	clone := op.Clone()
	l.mu.Unlock()

	l.publish(event.OperationCreated, clone)
	return clone
}

// MarkInProgress transitions a pending operation to in_progress.
func (l *Ledger) MarkInProgress(id string) error {
	return l.transition(id, func(op *types.Operation) error {
		if op.Status != types.StatusPending {
			return fmt.Errorf("%w: %s -> in_progress", ErrInvalidTransition, op.Status)
		}
		op.Status = types.StatusInProgress
		return nil
	})
}

// Complete records the result and transitions to completed. A terminal
// completed is never overwritten.
func (l *Ledger) Complete(id string, result json.RawMessage) error {
	return l.transition(id, func(op *types.Operation) error {
		if op.Status == types.StatusCompleted {
			return ErrTerminal
		}
		op.Status = types.StatusCompleted
		op.Result = append(json.RawMessage(nil), result...)
		op.Error = nil
		return nil
	})
}

// Fail attaches the error record and transitions to error.
func (l *Ledger) Fail(id string, rec *types.ErrorRecord) error {
	return l.transition(id, func(op *types.Operation) error {
		if op.Status == types.StatusCompleted {
			return ErrTerminal
		}
		op.Status = types.StatusError
		op.Error = rec
		return nil
	})
}

// Reopen transitions error -> in_progress for retry/recover. The prior
// error record moves to the append-only audit trail; the original input
// parameters are preserved untouched.
func (l *Ledger) Reopen(id string) error {
	return l.transition(id, func(op *types.Operation) error {
		if op.Status != types.StatusError {
			return fmt.Errorf("%w: %s -> in_progress", ErrInvalidTransition, op.Status)
		}
		if op.Error != nil {
			op.ErrorHistory = append(op.ErrorHistory, op.Error)
			op.Error = nil
		}
		op.Status = types.StatusInProgress
		return nil
	})
}

// MarkStrategy records which recovery strategy was chosen for the current
// error, for the audit trail.
func (l *Ledger) MarkStrategy(id, strategy string) error {
	return l.transition(id, func(op *types.Operation) error {
		if op.Error == nil {
			return fmt.Errorf("%w: no error record", ErrInvalidTransition)
		}
		op.Error.ChosenStrategy = strategy
		return nil
	})
}

// transition applies fn to the live entry under the lock and publishes the
// update.
func (l *Ledger) transition(id string, fn func(*types.Operation) error) error {
	l.mu.Lock()
	op, ok := l.ops[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if err := fn(op); err != nil {
		l.mu.Unlock()
		return err
	}
	op.UpdatedAt = time.Now()
	clone := op.Clone()
	l.mu.Unlock()

	l.publish(event.OperationUpdated, clone)
	return nil
}

// Get returns a copy of the operation, or ErrNotFound.
func (l *Ledger) Get(id string) (*types.Operation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op, ok := l.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return op.Clone(), nil
}

// List returns operations newest-first by creation time, after filtering,
// restartable via offset/limit. limit <= 0 means no limit.
func (l *Ledger) List(f Filter, limit, offset int) []*types.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.Operation
	skipped := 0
	for i := len(l.order) - 1; i >= 0; i-- {
		op := l.ops[l.order[i]]
		if f.Type != "" && op.Type != f.Type {
			continue
		}
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, op.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of recorded operations.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// evictLocked drops the oldest terminal entries while over capacity.
// Entries in pending/in_progress are never evicted, so the ledger may
// temporarily exceed max when every entry is live.
func (l *Ledger) evictLocked() {
	for len(l.ops) > l.max {
		evicted := false
		for i, id := range l.order {
			if l.ops[id].Status.Terminal() {
				delete(l.ops, id)
				l.order = append(l.order[:i], l.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// publish delivers synchronously so subscribers observe lifecycle events
// in emission order; an async fan-out could show completed before
// in_progress for the same operation.
func (l *Ledger) publish(t event.Type, op *types.Operation) {
	if l.bus == nil {
		return
	}
	l.bus.PublishSync(event.Event{Type: t, Data: op})
}

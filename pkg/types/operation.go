// Package types defines the shared data model for the prismata core.
package types

import (
	"encoding/json"
	"time"
)

// OperationStatus is the lifecycle state of an operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusError      OperationStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Operation is the session-lifetime record of one user-initiated unit of
// work. An operation may span multiple wire requests: a retry issues a new
// request under the same operation id.
type Operation struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"` // worker method name, e.g. "generate_code"
	Status OperationStatus `json:"status"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorRecord    `json:"error,omitempty"`

	// ErrorHistory is the append-only audit trail of error records cleared
	// by retry/recover.
	ErrorHistory []*ErrorRecord `json:"error_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy. The ledger hands out clones so callers can
// never mutate an in-flight entry.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	c.Params = append(json.RawMessage(nil), o.Params...)
	c.Result = append(json.RawMessage(nil), o.Result...)
	c.Error = o.Error.Clone()
	if o.ErrorHistory != nil {
		c.ErrorHistory = make([]*ErrorRecord, len(o.ErrorHistory))
		for i, rec := range o.ErrorHistory {
			c.ErrorHistory[i] = rec.Clone()
		}
	}
	return &c
}

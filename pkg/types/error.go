package types

import "time"

// ErrorCategory is the set of failure categories the classifier assigns
// on its own. Worker-supplied categories are carried verbatim and may
// extend this set.
type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryFileSystem ErrorCategory = "file_system"
	CategoryPermission ErrorCategory = "permission"
	CategoryValidation ErrorCategory = "validation"
	CategoryLLM        ErrorCategory = "llm"
	CategoryTool       ErrorCategory = "tool"
	CategoryWorkflow   ErrorCategory = "workflow"
	CategoryUnknown    ErrorCategory = "unknown"
)

// Valid reports whether c is a member of the closed category set.
func (c ErrorCategory) Valid() bool {
	switch c {
	case CategoryNetwork, CategoryFileSystem, CategoryPermission,
		CategoryValidation, CategoryLLM, CategoryTool,
		CategoryWorkflow, CategoryUnknown:
		return true
	}
	return false
}

// ErrorSeverity ranks how bad a failure is. Critical failures are fatal:
// the operation cannot be retried.
type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

// Fatal reports whether the severity rules out retrying.
func (s ErrorSeverity) Fatal() bool { return s == SeverityCritical }

// RecoveryStrategy is a named remedial action offered for a failed
// operation. Strategies are descriptive only: invoking one is a
// recover_operation request back to the worker.
type RecoveryStrategy struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ErrorRecord is attached to an operation in state error.
type ErrorRecord struct {
	Message         string             `json:"message"`
	Category        ErrorCategory      `json:"category"`
	Severity        ErrorSeverity      `json:"severity"`
	Details         map[string]any     `json:"details,omitempty"`
	Cause           string             `json:"cause,omitempty"`
	RecoveryOptions []RecoveryStrategy `json:"recovery_options,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
	ChosenStrategy  string             `json:"chosen_strategy,omitempty"`
}

// Offered reports whether the record offers a recovery strategy by name.
func (r *ErrorRecord) Offered(name string) bool {
	if r == nil {
		return false
	}
	for _, opt := range r.RecoveryOptions {
		if opt.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *ErrorRecord) Clone() *ErrorRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Details != nil {
		c.Details = make(map[string]any, len(r.Details))
		for k, v := range r.Details {
			c.Details[k] = v
		}
	}
	c.RecoveryOptions = append([]RecoveryStrategy(nil), r.RecoveryOptions...)
	return &c
}

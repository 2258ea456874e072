// Package recovery classifies failed operations into the closed error
// taxonomy and executes retry/recover actions against the worker.
package recovery

import (
	"errors"
	"time"

	"github.com/codeweiz/prismata/internal/correlator"
	"github.com/codeweiz/prismata/internal/protocol"
	"github.com/codeweiz/prismata/internal/transport"
	"github.com/codeweiz/prismata/pkg/types"
)

// RetryStrategy is the universal strategy offered on every non-fatal
// error, in addition to whatever the worker supplies.
const RetryStrategy = "retry"

// Classify maps a raw failure to an ErrorRecord. Worker payloads are
// carried verbatim; the classifier never invents strategies for
// worker-originated errors, it only appends the universal retry option
// when severity is not fatal.
func Classify(err error) *types.ErrorRecord {
	rec := &types.ErrorRecord{
		Message:    err.Error(),
		Category:   types.CategoryUnknown,
		Severity:   types.SeverityError,
		OccurredAt: time.Now(),
	}

	var remote *correlator.RemoteError
	switch {
	case errors.As(err, &remote):
		fromRemote(rec, remote.Payload)
	case errors.Is(err, correlator.ErrTimeout):
		rec.Category = types.CategoryNetwork
		rec.Severity = types.SeverityWarning
		rec.Details = map[string]any{"timeout": true}
	case errors.Is(err, transport.ErrNotConnected):
		rec.Category = types.CategoryNetwork
	}

	if !rec.Severity.Fatal() && !rec.Offered(RetryStrategy) {
		rec.RecoveryOptions = append(rec.RecoveryOptions, types.RecoveryStrategy{
			Name:        RetryStrategy,
			Description: "Retry the operation with the same parameters",
		})
	}
	return rec
}

func fromRemote(rec *types.ErrorRecord, payload *protocol.ResponseError) {
	rec.Message = payload.Message

	// The worker's category is authoritative even when it extends the
	// known set; the code fallback applies only when none was supplied.
	if payload.Category != "" {
		rec.Category = types.ErrorCategory(payload.Category)
	} else {
		rec.Category = categoryFromCode(payload.Code)
	}

	switch sev := types.ErrorSeverity(payload.Severity); sev {
	case types.SeverityInfo, types.SeverityWarning, types.SeverityError, types.SeverityCritical:
		rec.Severity = sev
	}

	if len(payload.Details) > 0 {
		rec.Details = payload.Details
	}
	for _, opt := range payload.RecoveryOptions {
		rec.RecoveryOptions = append(rec.RecoveryOptions, types.RecoveryStrategy{
			Name:        opt.Name,
			Description: opt.Description,
		})
	}
}

// categoryFromCode falls back to the protocol error code when the worker
// supplied no usable category.
func categoryFromCode(code int) types.ErrorCategory {
	switch code {
	case protocol.CodeFileNotFound, protocol.CodeEncodingError:
		return types.CategoryFileSystem
	case protocol.CodePermissionDenied:
		return types.CategoryPermission
	case protocol.CodeParseError, protocol.CodeInvalidRequest,
		protocol.CodeMethodNotFound, protocol.CodeInvalidParams:
		return types.CategoryValidation
	case protocol.CodeInvalidPrompt, protocol.CodeUnsupportedLanguage,
		protocol.CodeGenerationFailed:
		return types.CategoryLLM
	default:
		return types.CategoryUnknown
	}
}

// Package protocol defines the JSON-RPC envelopes exchanged with the
// assistant worker over the persistent connection.
package protocol

import "encoding/json"

// Version is the JSON-RPC version stamped on every request.
const Version = "2.0"

// Request is an outgoing JSON-RPC request envelope. IDs are strings on the
// wire; the correlator allocates them from a monotonic counter.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request envelope for the given correlation id.
func NewRequest(id, method string, params any) Request {
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// Response is an inbound JSON-RPC response envelope. Exactly one of Result
// and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the worker's structured error payload. Category,
// severity and recovery options are worker-defined and carried verbatim;
// Details stays an open mapping because the worker may extend it.
type ResponseError struct {
	Code            int              `json:"code,omitempty"`
	Message         string           `json:"message"`
	Category        string           `json:"category,omitempty"`
	Severity        string           `json:"severity,omitempty"`
	Details         map[string]any   `json:"details,omitempty"`
	RecoveryOptions []RecoveryOption `json:"recovery_options,omitempty"`
	Data            json.RawMessage  `json:"data,omitempty"`
}

// RecoveryOption is a remedial action the worker offers for an error.
type RecoveryOption struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Standard JSON-RPC error codes plus the worker's custom range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeFileNotFound        = -32000
	CodePermissionDenied    = -32001
	CodeEncodingError       = -32002
	CodeInvalidPrompt       = -32010
	CodeUnsupportedLanguage = -32011
	CodeGenerationFailed    = -32012
)

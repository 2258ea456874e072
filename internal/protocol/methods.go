package protocol

import "encoding/json"

// Worker method names. These are the contract surface; payload schemas are
// owned by the worker except for the typed params/results below.
const (
	MethodGenerateCode     = "generate_code"
	MethodAnalyzeCode      = "analyze_code"
	MethodAnalyzeCrossFile = "analyze_cross_file_dependencies"
	MethodRefactorCode     = "refactor_code"
	MethodCompleteCode     = "complete_code"

	MethodGetOperationHistory = "get_operation_history"
	MethodGetOperation        = "get_operation"
	MethodRetryOperation      = "retry_operation"
	MethodRecoverOperation    = "recover_operation"

	MethodReadFile         = "read_file"
	MethodGetFileMetadata  = "get_file_metadata"
	MethodWriteFile        = "write_file"
	MethodConfirmWriteFile = "confirm_write_file"
)

// GenerateCodeParams are the parameters for generate_code.
type GenerateCodeParams struct {
	Prompt   string         `json:"prompt"`
	Context  string         `json:"context,omitempty"`
	Language string         `json:"language,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// GenerateCodeResult is the result of generate_code.
type GenerateCodeResult struct {
	Code         string   `json:"code"`
	Language     string   `json:"language,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// CompleteCodeParams are the parameters for complete_code.
type CompleteCodeParams struct {
	Code     string `json:"code"`
	Position int    `json:"position"`
	Language string `json:"language,omitempty"`
}

// AnalyzeCodeParams are the parameters for analyze_code and
// analyze_cross_file_dependencies.
type AnalyzeCodeParams struct {
	Code     string   `json:"code,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
	Files    []string `json:"files,omitempty"`
	Language string   `json:"language,omitempty"`
}

// RefactorCodeParams are the parameters for refactor_code.
type RefactorCodeParams struct {
	Code        string `json:"code"`
	Instruction string `json:"instruction"`
	FilePath    string `json:"file_path,omitempty"`
	Language    string `json:"language,omitempty"`
}

// ReadFileParams are the parameters for read_file.
type ReadFileParams struct {
	FilePath string `json:"file_path"`
	Encoding string `json:"encoding,omitempty"`
}

// ReadFileResult is the result of read_file.
type ReadFileResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WriteFileParams are the parameters for write_file and confirm_write_file.
type WriteFileParams struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

// WriteFileResult is the result of write_file.
type WriteFileResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
}

// FileMetadata is the result of get_file_metadata.
type FileMetadata struct {
	FilePath string `json:"file_path"`
	Size     int64  `json:"size"`
	Modified string `json:"modified,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Language string `json:"language,omitempty"`
}

// HistoryParams are the parameters for get_operation_history.
type HistoryParams struct {
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RecoverParams are the parameters for recover_operation.
type RecoverParams struct {
	OperationID string `json:"operation_id"`
	Strategy    string `json:"strategy"`
}

// RawParams marshals params to a raw message, for callers that record the
// exact bytes sent.
func RawParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

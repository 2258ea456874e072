package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeweiz/prismata/internal/protocol"
)

func TestInvokeRejectsMalformedParams(t *testing.T) {
	err := runInvoke(invokeCmd, []string{"generate_code", "{not json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON")
}

func TestInvokeHelpExamplesMatchWireFormat(t *testing.T) {
	// Every example's params must decode strictly into the method's
	// request struct, so the help never teaches field names the worker
	// would reject.
	targets := map[string]any{
		protocol.MethodGenerateCode: &protocol.GenerateCodeParams{},
		protocol.MethodAnalyzeCode:  &protocol.AnalyzeCodeParams{},
		protocol.MethodReadFile:     &protocol.ReadFileParams{},
	}

	seen := 0
	for _, line := range strings.Split(invokeCmd.Long, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "prismata invoke ") {
			continue
		}
		rest := strings.TrimPrefix(line, "prismata invoke ")
		method, params, ok := strings.Cut(rest, " ")
		require.True(t, ok, "example without params: %s", line)
		params = strings.Trim(params, "'")

		target, known := targets[method]
		require.True(t, known, "example for unknown method %s", method)

		dec := json.NewDecoder(strings.NewReader(params))
		dec.DisallowUnknownFields()
		require.NoError(t, dec.Decode(target), "example: %s", line)
		seen++
	}
	require.Equal(t, len(targets), seen)
}

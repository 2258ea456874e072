package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <method> [json-params]",
	Short: "Dispatch a single operation to the worker",
	Long: `Dispatch one operation to the worker and print its result as JSON.

Examples:
  prismata invoke generate_code '{"prompt":"binary search","language":"go"}'
  prismata invoke analyze_code '{"file_path":"main.go"}'
  prismata invoke read_file '{"file_path":"internal/server.go"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

func runInvoke(cmd *cobra.Command, args []string) error {
	method := args[0]

	var params json.RawMessage
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("params must be a JSON document: %q", args[1])
		}
		params = json.RawMessage(args[1])
	}

	ctx := context.Background()
	sess, stop, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer stop()

	result, err := sess.Invoke(ctx, method, params)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

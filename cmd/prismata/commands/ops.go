package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/codeweiz/prismata/internal/protocol"
)

var (
	opsType   string
	opsStatus string
	opsLimit  int
	opsOffset int
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect, retry and recover recorded operations",
}

var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the worker's operation history",
	RunE:  runOpsList,
}

var opsGetCmd = &cobra.Command{
	Use:   "get <operation-id>",
	Short: "Show one recorded operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsGet,
}

var opsRetryCmd = &cobra.Command{
	Use:   "retry <operation-id>",
	Short: "Re-run a failed operation with its original parameters",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsRetry,
}

var opsRecoverCmd = &cobra.Command{
	Use:   "recover <operation-id> <strategy>",
	Short: "Apply a recovery strategy to a failed operation",
	Args:  cobra.ExactArgs(2),
	RunE:  runOpsRecover,
}

func init() {
	opsListCmd.Flags().StringVar(&opsType, "type", "", "Filter by operation type")
	opsListCmd.Flags().StringVar(&opsStatus, "status", "", "Filter by status (pending|in_progress|completed|error)")
	opsListCmd.Flags().IntVar(&opsLimit, "limit", 20, "Maximum entries to return")
	opsListCmd.Flags().IntVar(&opsOffset, "offset", 0, "Entries to skip")

	opsCmd.AddCommand(opsListCmd)
	opsCmd.AddCommand(opsGetCmd)
	opsCmd.AddCommand(opsRetryCmd)
	opsCmd.AddCommand(opsRecoverCmd)
}

// opsInvoke dispatches one of the worker's operation-ledger methods and
// prints the result.
func opsInvoke(method string, params any) error {
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

func runOpsList(cmd *cobra.Command, args []string) error {
	return opsInvoke(protocol.MethodGetOperationHistory, protocol.HistoryParams{
		Type:   opsType,
		Status: opsStatus,
		Limit:  opsLimit,
		Offset: opsOffset,
	})
}

func runOpsGet(cmd *cobra.Command, args []string) error {
	return opsInvoke(protocol.MethodGetOperation, map[string]string{"operation_id": args[0]})
}

func runOpsRetry(cmd *cobra.Command, args []string) error {
	return opsInvoke(protocol.MethodRetryOperation, map[string]string{"operation_id": args[0]})
}

func runOpsRecover(cmd *cobra.Command, args []string) error {
	return opsInvoke(protocol.MethodRecoverOperation, protocol.RecoverParams{
		OperationID: args[0],
		Strategy:    args[1],
	})
}

// Package commands provides the CLI commands for Prismata.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeweiz/prismata/internal/config"
	"github.com/codeweiz/prismata/internal/logging"
	"github.com/codeweiz/prismata/internal/session"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:   "prismata",
	Short: "Prismata - AI assistant worker orchestrator",
	Long: `Prismata supervises an AI assistant worker process and dispatches
code generation, analysis and file operations to it over a WebSocket
JSON-RPC connection.

Run 'prismata invoke <method>' to dispatch a single operation, or
'prismata ops' to inspect, retry and recover recorded operations.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; missing files are not an error
		_ = godotenv.Load()
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "directory", "d", "", "Working directory")

	rootCmd.SetVersionTemplate(fmt.Sprintf("prismata %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(opsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// openSession loads configuration, starts a session against the worker
// and returns it with a stop function for the caller to defer.
func openSession(ctx context.Context) (*session.Session, func(), error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}

	sess := session.New(cfg)
	if err := sess.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() { _ = sess.Stop(context.Background()) }
	return sess, stop, nil
}

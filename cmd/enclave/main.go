// Package main implements the enclave CLI: a thin operator-facing front end
// over the sandbox core, with a PersistentPreRunE that wires up zap and
// file-logging init, and a PersistentPostRun that syncs/closes them.
//
// # File Index
//
//   - main.go      - entry point, rootCmd, global flags
//   - cmd_run.go   - runCmd: execute a source file through an Enclave
//   - cmd_check.go - checkCmd: validate-only, no execution
//   - cmd_serve.go - serveCmd: run with the reference echo tool handler
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/obslog"
)

var (
	verbose       bool
	workspace     string
	configPath    string
	securityLevel string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "enclave",
	Short: "enclave - sandbox escape prevention and resource governance engine",
	Long: `enclave executes untrusted agent-supplied source inside a hardened
execution context and mediates its interaction with a host tool-call
interface.

Validator, membrane, dual-context isolation, resource governor, and
tool-call bridge compose into a single run() surface; see subcommands for
the operator-facing entry points.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := obslog.Initialize(ws, verbose); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		obslog.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to enclave YAML config")
	rootCmd.PersistentFlags().StringVarP(&securityLevel, "security-level", "l", "", "override security level (permissive|standard|secure|strict)")

	rootCmd.AddCommand(runCmd, checkCmd, serveCmd)
}

func loadOptions() (config.Options, error) {
	fc, err := config.Load(configPath)
	if err != nil {
		return config.Options{}, err
	}
	if securityLevel != "" {
		fc.SecurityLevel = securityLevel
	}
	return fc.ToOptions()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

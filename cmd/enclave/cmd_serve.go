package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfront/enclave/internal/bridge"
	"github.com/agentfront/enclave/internal/enclave"
)

var serveCmd = &cobra.Command{
	Use:   "serve <source.js>",
	Short: "execute a source file wired to the reference echo tool handler",
	Long: `serve runs a source file with bridge.EchoHandler as the toolHandler,
useful for exercising callTool round-trips without a real host integration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		opts, err := loadOptions()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		opts.ToolHandler = bridge.EchoHandler
		enc, err := enclave.New(opts)
		if err != nil {
			return fmt.Errorf("construct enclave: %w", err)
		}
		result := enc.Run(context.Background(), string(src))
		return printResult(result)
	},
}

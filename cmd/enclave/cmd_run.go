package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfront/enclave/internal/enclave"
)

var runCmd = &cobra.Command{
	Use:   "run <source.js>",
	Short: "execute a source file inside a fresh enclave",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		opts, err := loadOptions()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		enc, err := enclave.New(opts)
		if err != nil {
			return fmt.Errorf("construct enclave: %w", err)
		}
		result := enc.Run(context.Background(), string(src))
		return printResult(result)
	},
}

func printResult(result *enclave.SessionResult) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(encoded))
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

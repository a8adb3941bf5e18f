package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentfront/enclave/internal/validator"
)

var checkCmd = &cobra.Command{
	Use:   "check <source.js>",
	Short: "run only the syntactic validator against a source file, no execution",
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
		lc := opts.ResolvedLevelConfig()
		report, verr := validator.Validate(string(src), lc, opts.Limits)
		if verr != nil {
			fmt.Printf("REJECTED: %s\n", verr.Message)
			for _, v := range report.Violations {
				fmt.Printf("  rule=%s location=%s snippet=%q\n", v.Rule, v.Location, v.Snippet)
			}
			os.Exit(1)
		}
		fmt.Println("ACCEPTED")
		return nil
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/riacrawler/pkg/analyzer"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE.ndjson",
	Short: "Report on the records of an ndjson output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open output: %w", err)
		}
		defer f.Close()

		report, err := analyzer.New().AnalyzeNDJSON(f, args[0])
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return writeReport(cmd, report)
	},
}

func init() {
	addReportFlags(analyzeCmd)
}

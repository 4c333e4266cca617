package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/riacrawler/internal/models"
	"github.com/amosWeiskopf/riacrawler/pkg/reporter"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "riacrawler",
	Short: "riacrawler - AutoRia classifieds crawler",
	Long: `riacrawler submits a search filter on auto.ria.com through a Splash
rendering service, walks the paginated results and writes one record per
vehicle advert to xlsx, ndjson, sqlite or postgres.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
	},
}

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// configError marks err as a configuration problem, exit code 2
func configError(err error) error {
	return &exitError{code: 2, err: err}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

// addReportFlags registers the report flags shared by crawl and analyze
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("report-format", reporter.FormatTable, "Report format ("+strings.Join(reporter.Formats(), ", ")+")")
	cmd.Flags().String("report-output", "", "Output file for the report")
}

// writeReport renders report in the format named by the command's flags
func writeReport(cmd *cobra.Command, report *models.DatasetReport) error {
	format, _ := cmd.Flags().GetString("report-format")
	output, _ := cmd.Flags().GetString("report-output")

	rendered, err := reporter.New().Render(report, format)
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	if output != "" {
		if err := os.WriteFile(output, []byte(rendered), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report saved to %s\n", output)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/patrol/pkg/config"
	"github.com/entrhq/patrol/pkg/report"
)

var (
	reportFormat string
	reportCopy   bool
	reportPDF    bool
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <report.json>",
	Short: "Re-render a saved report artifact",
	Long: `Report reads a report.json written by a previous run and renders it
again, so a finished run can be inspected in another format, exported, or
pasted into a ticket without re-executing the suite.

Example usage:
  patrol report artifacts/report.json
  patrol report artifacts/report.json --format markdown --copy
  patrol report artifacts/report.json --pdf
  patrol report artifacts/report.json --output ./export`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", config.FormatText, "output format: text, json, or markdown")
	reportCmd.Flags().BoolVar(&reportCopy, "copy", false, "copy the rendered report to the clipboard")
	reportCmd.Flags().BoolVar(&reportPDF, "pdf", false, "bundle the report's screenshots into screenshots.pdf")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "directory to re-write report.json and report.md into")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if !config.ValidFormat(reportFormat) {
		return usageError(fmt.Errorf("unknown format %q, supported formats: %s, %s, %s",
			reportFormat, config.FormatText, config.FormatJSON, config.FormatMarkdown))
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return usageError(fmt.Errorf("failed to read report: %w", err))
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return usageError(fmt.Errorf("%s is not a patrol report: %w", args[0], err))
	}

	rendered, err := renderReport(&rep, reportFormat)
	if err != nil {
		return failureError(err)
	}
	fmt.Println(rendered)

	if reportCopy {
		if err := clipboard.WriteAll(rendered); err != nil {
			return failureError(fmt.Errorf("failed to copy report to clipboard: %w", err))
		}
		fmt.Fprintln(os.Stderr, "report copied to clipboard")
	}

	if reportPDF {
		// Screenshot references are relative to the directory the report
		// artifact lives in.
		w := report.NewArtifactWriter(filepath.Dir(args[0]))
		if err := w.WriteScreenshotsPDF(&rep); err != nil {
			return failureError(err)
		}
	}

	if reportOutput != "" {
		if err := os.MkdirAll(reportOutput, 0755); err != nil {
			return failureError(fmt.Errorf("failed to create output directory: %w", err))
		}
		w := report.NewArtifactWriter(reportOutput)
		if err := w.WriteReportJSON(&rep); err != nil {
			return failureError(err)
		}
		if err := w.WriteReportMarkdown(&rep); err != nil {
			return failureError(err)
		}
		fmt.Fprintf(os.Stderr, "report written to %s\n", reportOutput)
	}

	return nil
}

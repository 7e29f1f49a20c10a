package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/patrol/pkg/suite"
)

var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Inspect suite files",
}

var suiteShowCmd = &cobra.Command{
	Use:   "show <suite.yaml>",
	Short: "Print the normalized suite with defaults applied",
	Long: `Show parses the suite and prints it back as YAML with suite-level
defaults (provider, headless, timeout, take_screenshots) resolved into each
scenario — the exact form the engine executes. Output is syntax-highlighted
on a TTY.

Example usage:
  patrol suite show suite.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSuiteShow,
}

func init() {
	suiteCmd.AddCommand(suiteShowCmd)
	rootCmd.AddCommand(suiteCmd)
}

func runSuiteShow(cmd *cobra.Command, args []string) error {
	st, err := suite.Load(args[0])
	if err != nil {
		return usageError(err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return usageError(fmt.Errorf("failed to render suite: %w", err))
	}

	if isTTY(os.Stdout) {
		if err := quick.Highlight(os.Stdout, string(data), "yaml", "terminal256", "monokai"); err == nil {
			return nil
		}
		// Highlighting is cosmetic; fall through to plain output.
	}
	fmt.Print(string(data))
	return nil
}

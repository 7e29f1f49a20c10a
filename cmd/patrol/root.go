package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. Scripts rely on these: 1 means the suite ran and something
// failed, 2 means the suite never ran at all.
const (
	// ExitCodeSuccess: every scenario passed.
	ExitCodeSuccess = 0
	// ExitCodeFailed: at least one scenario failed, or the execution
	// ended Failed/TimedOut.
	ExitCodeFailed = 1
	// ExitCodeUsage: the suite could not be parsed or the configuration
	// is invalid; no execution was created and no report exists.
	ExitCodeUsage = 2
)

// configPath is the --config persistent flag. Empty means the default
// location (~/.config/patrol/config.yaml), whose absence is fine.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "patrol",
	Short: "Run natural-language browser test suites",
	Long: `Patrol executes declarative YAML suites of natural-language browser
test scenarios. An LLM-backed agent interprets each scenario's requirement
and drives a real browser session to verify it; failures are classified
into a fixed error taxonomy and aggregated into a report.

Example usage:
  patrol run suite.yaml                    # Run a suite sequentially
  patrol run suite.yaml --parallel         # Run scenarios concurrently
  patrol run suite.yaml --filter 'login-*' # Run a subset by glob
  patrol validate suites/                  # Parse-check suites without running
  patrol suite show suite.yaml             # Print the normalized suite
  patrol serve                             # Expose the engine over HTTP`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries an explicit exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageError marks err as a parse/config problem (exit code 2).
func usageError(err error) error {
	return &exitError{code: ExitCodeUsage, err: err}
}

// failureError marks err as an execution failure (exit code 1).
func failureError(err error) error {
	return &exitError{code: ExitCodeFailed, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitCodeSuccess
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitCodeFailed
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the config file (default ~/.config/patrol/config.yaml)")
}

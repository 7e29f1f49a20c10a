package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/patrol/pkg/suite"
)

var validateCmd = &cobra.Command{
	Use:   "validate <suite.yaml|dir>",
	Short: "Parse-check suite files without running them",
	Long: `Validate parses one suite file, or every .yaml/.yml file in a
directory, and reports the result per file. Nothing is executed.

Example usage:
  patrol validate suite.yaml
  patrol validate ./suites/`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := suiteFiles(args[0])
	if err != nil {
		return usageError(err)
	}

	for _, path := range paths {
		st, err := suite.Load(path)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", path, err)
			return usageError(fmt.Errorf("%s is not a valid suite", path))
		}
		fmt.Printf("✓ %s: %q (%d scenarios)\n", path, st.Name, len(st.Scenarios))
	}
	return nil
}

// suiteFiles expands path into the suite files to check: the file itself, or
// every YAML file directly inside the directory, sorted.
func suiteFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no suite files found in %s", path)
	}
	sort.Strings(files)
	return files, nil
}

package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes and validates a YAML suite document, then resolves
// suite-level defaults into each scenario. It has no side effects; a non-nil
// error is always a *ValidationError or a YAML decode error.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	s.applyDefaults()
	return &s, nil
}

// Load reads and parses one suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadDir parses every .yaml/.yml file directly inside dir, sorted by file
// name. It fails on the first invalid file.
func LoadDir(dir string) ([]*Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no suite files found in %s", dir)
	}

	suites := make([]*Suite, 0, len(paths))
	for _, path := range paths {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}
	return suites, nil
}

func (s *Suite) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return suiteErr("name", "is required")
	}
	if len(s.Scenarios) == 0 {
		return suiteErr("scenarios", "must contain at least one scenario")
	}
	if s.Timeout < 0 {
		return suiteErr("timeout", "must not be negative")
	}

	seen := make(map[string]struct{}, len(s.Scenarios))
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		label := sc.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		if strings.TrimSpace(sc.Name) == "" {
			return scenarioErr(label, "name", "is required")
		}
		if _, dup := seen[sc.Name]; dup {
			return scenarioErr(sc.Name, "name", "is duplicated within the suite")
		}
		seen[sc.Name] = struct{}{}

		if strings.TrimSpace(sc.Requirement) == "" {
			return scenarioErr(sc.Name, "requirement", "is required")
		}
		if strings.TrimSpace(sc.URL) == "" {
			return scenarioErr(sc.Name, "url", "is required")
		}
		if sc.Type == "" {
			return scenarioErr(sc.Name, "test_type", "is required")
		}
		if !sc.Type.Valid() {
			return scenarioErr(sc.Name, "test_type",
				fmt.Sprintf("%q is not one of %v", sc.Type, TestTypes()))
		}
		if sc.Timeout < 0 {
			return scenarioErr(sc.Name, "timeout", "must not be negative")
		}
	}
	return nil
}

// applyDefaults cascades suite-level provider, headless, timeout, and
// screenshot settings into scenarios that leave them unset. Set fields are
// never overwritten.
func (s *Suite) applyDefaults() {
	headless := true
	if s.Headless != nil {
		headless = *s.Headless
	}
	s.Headless = &headless

	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if sc.Provider == "" {
			sc.Provider = s.Provider
		}
		if sc.Headless == nil {
			h := headless
			sc.Headless = &h
		}
		if sc.Timeout == 0 {
			sc.Timeout = s.Timeout
		}
		if sc.TakeScreenshots == nil && s.TakeScreenshots != nil {
			v := *s.TakeScreenshots
			sc.TakeScreenshots = &v
		}
	}
}

// Names returns the scenario names in suite order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		names[i] = sc.Name
	}
	return names
}

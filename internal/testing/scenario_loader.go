package testing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultScenarioPath is where scenarios are looked up when no path is given.
const DefaultScenarioPath = "scenarios"

// scenarioLoader implements the TestScenarioLoader interface
type scenarioLoader struct {
	debug   bool
	logger  TestLogger
	actions *Registry
}

// NewTestScenarioLoader creates a new test scenario loader. When actions is not nil,
// steps naming an unregistered action are rejected at load time.
func NewTestScenarioLoader(debug bool, logger TestLogger, actions *Registry) TestScenarioLoader {
	if logger == nil {
		logger = NewStdoutLogger(false, debug)
	}
	return &scenarioLoader{
		debug:   debug,
		logger:  logger,
		actions: actions,
	}
}

// LoadScenarios loads test scenarios from the given path
func (l *scenarioLoader) LoadScenarios(configPath string) ([]TestScenario, error) {
	var scenarios []TestScenario

	l.logger.Debug("📁 Loading test scenarios from: %s\n", configPath)

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("scenario path does not exist: %s", configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat scenario path: %w", err)
	}

	if info.IsDir() {
		scenarios, err = l.loadScenariosFromDirectory(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenarios from directory: %w", err)
		}
	} else {
		scenario, err := l.loadScenarioFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenario from file: %w", err)
		}
		scenarios = append(scenarios, scenario)
	}

	if err := checkUniqueNames(scenarios); err != nil {
		return nil, err
	}

	if l.debug {
		l.logger.Debug("📋 Loaded %d test scenarios\n", len(scenarios))
		for _, scenario := range scenarios {
			l.logger.Debug("  • %s (%s/%s) - %d steps\n",
				scenario.Name, scenario.Category, scenario.Component, len(scenario.Steps))
		}
	}

	return scenarios, nil
}

// loadScenariosFromDirectory loads all YAML scenario files from a directory
func (l *scenarioLoader) loadScenariosFromDirectory(dirPath string) ([]TestScenario, error) {
	var scenarios []TestScenario

	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}

		l.logger.Debug("📄 Loading scenario file: %s\n", path)

		scenario, err := l.loadScenarioFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to load scenario from %s: %w", path, err)
		}

		scenarios = append(scenarios, scenario)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dirPath, err)
	}

	return scenarios, nil
}

// loadScenarioFromFile loads a single scenario from a YAML file
func (l *scenarioLoader) loadScenarioFromFile(filePath string) (TestScenario, error) {
	var scenario TestScenario

	content, err := os.ReadFile(filePath)
	if err != nil {
		return scenario, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(content, &scenario); err != nil {
		return scenario, fmt.Errorf("failed to parse YAML in %s: %w", filePath, err)
	}

	if err := l.validateScenario(scenario); err != nil {
		return scenario, fmt.Errorf("invalid scenario in %s: %w", filePath, err)
	}

	return scenario, nil
}

// validateScenario validates that a scenario has required fields
func (l *scenarioLoader) validateScenario(scenario TestScenario) error {
	if scenario.Name == "" {
		return fmt.Errorf("scenario name is required")
	}

	if scenario.Category == "" {
		return fmt.Errorf("scenario category is required")
	}
	if !slices.Contains(ValidCategories, scenario.Category) {
		return fmt.Errorf("unknown category %q, expected one of %v", scenario.Category, ValidCategories)
	}

	if scenario.Component == "" {
		return fmt.Errorf("scenario component is required")
	}
	if !slices.Contains(ValidComponents, scenario.Component) {
		return fmt.Errorf("unknown component %q, expected one of %v", scenario.Component, ValidComponents)
	}

	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario must have at least one step")
	}

	seen := make(map[string]bool)
	for i, step := range scenario.Steps {
		if err := l.validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if seen[step.ID] {
			return fmt.Errorf("step %d: duplicate step id %q", i+1, step.ID)
		}
		seen[step.ID] = true
	}

	for i, step := range scenario.Cleanup {
		if err := l.validateStep(step); err != nil {
			return fmt.Errorf("cleanup step %d: %w", i+1, err)
		}
	}

	return nil
}

// validateStep validates that a step has required fields
func (l *scenarioLoader) validateStep(step TestStep) error {
	if step.ID == "" {
		return fmt.Errorf("step id is required")
	}

	if step.Action == "" {
		return fmt.Errorf("step action is required")
	}
	if l.actions != nil && !l.actions.Has(step.Action) {
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Retry != nil {
		if step.Retry.Count < 0 {
			return fmt.Errorf("retry count cannot be negative")
		}
		if step.Retry.Delay < 0 {
			return fmt.Errorf("retry delay cannot be negative")
		}
		if step.Retry.BackoffMultiplier < 0 {
			return fmt.Errorf("backoff multiplier cannot be negative")
		}
	}

	if step.Timeout < 0 || step.Expected.WaitForState < 0 {
		return fmt.Errorf("durations cannot be negative")
	}

	return nil
}

func checkUniqueNames(scenarios []TestScenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if seen[s.Name] {
			return fmt.Errorf("duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// FilterScenarios filters scenarios based on the configuration
func (l *scenarioLoader) FilterScenarios(scenarios []TestScenario, config TestConfiguration) []TestScenario {
	if l.debug {
		l.logger.Debug("🔍 Filtering scenarios based on configuration\n")
		l.logger.Debug("  • Category filter: %s\n", string(config.Category))
		l.logger.Debug("  • Component filter: %s\n", string(config.Component))
		l.logger.Debug("  • Scenario filter: %s\n", config.Scenario)
		l.logger.Debug("  • Tags filter: %s\n", strings.Join(config.Tags, ","))
	}

	var filtered []TestScenario

	for _, scenario := range scenarios {
		if config.Category != "" && scenario.Category != config.Category {
			continue
		}

		if config.Component != "" && scenario.Component != config.Component {
			continue
		}

		if config.Scenario != "" && scenario.Name != config.Scenario {
			continue
		}

		if len(config.Tags) > 0 && !hasAnyTag(scenario.Tags, config.Tags) {
			continue
		}

		filtered = append(filtered, scenario)
	}

	if l.debug {
		l.logger.Debug("📊 Filtered to %d scenarios:\n", len(filtered))
		for _, scenario := range filtered {
			l.logger.Debug("  • %s (%s/%s)\n", scenario.Name, scenario.Category, scenario.Component)
		}
	}

	return filtered
}

func hasAnyTag(have, want []string) bool {
	for _, tag := range want {
		if slices.Contains(have, tag) {
			return true
		}
	}
	return false
}

// isYAMLFile checks if a file has a YAML extension
func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ScenarioNames returns the sorted names of the scenarios, for shell completion.
func ScenarioNames(scenarios []TestScenario) []string {
	names := make([]string, 0, len(scenarios))
	for _, scenario := range scenarios {
		names = append(names, scenario.Name)
	}
	sort.Strings(names)
	return names
}

// GetScenarioPath determines the actual scenario path to use, handling empty/default cases
func GetScenarioPath(configPath string) string {
	if configPath == "" {
		return DefaultScenarioPath
	}
	return configPath
}

// LoadAndFilterScenarios provides a unified way to load and filter scenarios
func LoadAndFilterScenarios(config TestConfiguration, logger TestLogger, actions *Registry) ([]TestScenario, error) {
	actualPath := GetScenarioPath(config.ConfigPath)

	loader := NewTestScenarioLoader(config.Debug, logger, actions)
	scenarios, err := loader.LoadScenarios(actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenarios from %s: %w", actualPath, err)
	}

	return loader.FilterScenarios(scenarios, config), nil
}

package testing

import (
	"context"
	"time"
)

// TestCategory groups scenarios by how invasive or broad they are.
type TestCategory string

const (
	// CategorySmoke represents quick checks of a freshly deployed environment
	CategorySmoke TestCategory = "smoke"
	// CategorySystem represents end-to-end behaviour of the deployed control plane
	CategorySystem TestCategory = "system"
	// CategoryStacklight represents logging, metrics and dashboard checks
	CategoryStacklight TestCategory = "stacklight"
	// CategoryDestructive represents tests that break nodes or services on purpose
	CategoryDestructive TestCategory = "destructive"
)

// TestComponent represents the part of the environment a scenario exercises
type TestComponent string

const (
	ComponentK8s        TestComponent = "k8s"
	ComponentCCP        TestComponent = "ccp"
	ComponentStacklight TestComponent = "stacklight"
	ComponentUnderlay   TestComponent = "underlay"
	ComponentConfig     TestComponent = "config"
)

// ValidCategories lists the accepted scenario categories.
var ValidCategories = []TestCategory{CategorySmoke, CategorySystem, CategoryStacklight, CategoryDestructive}

// ValidComponents lists the accepted scenario components.
var ValidComponents = []TestComponent{ComponentK8s, ComponentCCP, ComponentStacklight, ComponentUnderlay, ComponentConfig}

// TestResult is the outcome of a step, a scenario or a whole run.
type TestResult string

const (
	ResultPassed TestResult = "PASSED"
	ResultFailed TestResult = "FAILED"
	ResultSkipped TestResult = "SKIPPED"
	// ResultError means the harness itself broke (unreachable node, bad arguments), as
	// opposed to an expectation that did not hold.
	ResultError TestResult = "ERROR"
)

// TestLogger is the runner's printf-style logger. Info is gated on verbose, Debug on debug.
type TestLogger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
	IsDebugEnabled() bool
	IsVerboseEnabled() bool
}

// TestConfiguration holds the options of one `ccptest test` run.
type TestConfiguration struct {
	// Timeout bounds the whole run.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Category TestCategory `yaml:"category,omitempty" json:"category,omitempty"`
	Component TestComponent `yaml:"component,omitempty" json:"component,omitempty"`
	// Category, Component and Scenario narrow the loaded scenarios; empty means all.
	Scenario string `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	// Tags keeps only scenarios carrying at least one of the tags
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Parallel is the worker count. Values below 2 run scenarios one after another.
	Parallel int `yaml:"parallel" json:"parallel"`
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`
	Verbose bool `yaml:"verbose" json:"verbose"`
	Debug bool `yaml:"debug" json:"debug"`
	// ConfigPath is a scenario file or a directory searched recursively.
	ConfigPath string `yaml:"config_path,omitempty" json:"config_path,omitempty"`
	ReportPath string `yaml:"report_path,omitempty" json:"report_path,omitempty"`
	// MetricsPath receives a Prometheus textfile when set.
	MetricsPath string `yaml:"metrics_path,omitempty" json:"metrics_path,omitempty"`
}

// TestScenario is one YAML-defined acceptance check against the environment.
type TestScenario struct {
	// Name must be unique across the loaded scenarios.
	Name string `yaml:"name" json:"name"`
	Category TestCategory `yaml:"category" json:"category"`
	Component TestComponent `yaml:"component" json:"component"`
	Description string `yaml:"description" json:"description,omitempty"`
	// Snapshot names the environment snapshot reverted to before the first step.
	Snapshot string `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
	Steps []TestStep `yaml:"steps" json:"steps"`
	// Cleanup steps always run, even after a failed step.
	Cleanup []TestStep `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Skip bool `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// TestStep invokes one registered action and checks its outcome.
type TestStep struct {
	ID string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Action is a name from the action registry, e.g. "ssh.exec" or "kube.wait_pod_phase".
	Action string `yaml:"action" json:"action"`
	// Args are rendered through the template engine before the action sees them.
	Args map[string]any `yaml:"args" json:"args,omitempty"`
	Expected TestExpectation `yaml:"expected" json:"expected"`
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Store saves the response under this name for later templates
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
}

// TestExpectation describes what a step must return.
type TestExpectation struct {
	// Success is false by default, so a step that omits it expects the action to fail.
	Success bool `yaml:"success" json:"success"`
	ErrorContains []string `yaml:"error_contains,omitempty" json:"error_contains,omitempty"`
	// Contains and NotContains match against the rendered response.
	Contains []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	NotContains []string `yaml:"not_contains,omitempty" json:"not_contains,omitempty"`
	// Values maps keypaths into the response to their expected values
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty"`
	// WaitForState repeats the action until the expectations hold or the duration passes
	WaitForState time.Duration `yaml:"wait_for_state,omitempty" json:"wait_for_state,omitempty"`
}

// RetryConfig re-runs a failing step.
type RetryConfig struct {
	Count int `yaml:"count" json:"count"`
	Delay time.Duration `yaml:"delay" json:"delay"`
	// BackoffMultiplier scales Delay after every attempt. Zero keeps it constant.
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`
}

// TestSuiteResult aggregates a run.
type TestSuiteResult struct {
	// RunID identifies this run in reports and metrics
	RunID string `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime time.Time `json:"end_time"`
	Duration time.Duration `json:"duration"`
	TotalScenarios int `json:"total_scenarios"`
	PassedScenarios int `json:"passed_scenarios"`
	FailedScenarios int `json:"failed_scenarios"`
	SkippedScenarios int `json:"skipped_scenarios"`
	ErrorScenarios int `json:"error_scenarios"`
	// ScenarioResults keep the input order, also in parallel runs.
	ScenarioResults []TestScenarioResult `json:"scenario_results"`
	Configuration TestConfiguration `json:"configuration"`
}

// Succeeded reports whether no scenario failed or errored.
func (r *TestSuiteResult) Succeeded() bool {
	return r.FailedScenarios == 0 && r.ErrorScenarios == 0
}

// TestScenarioResult is the outcome of one scenario, cleanup steps included.
type TestScenarioResult struct {
	Scenario TestScenario `json:"scenario"`
	Result TestResult `json:"result"`
	StartTime time.Time `json:"start_time"`
	EndTime time.Time `json:"end_time"`
	Duration time.Duration `json:"duration"`
	StepResults []TestStepResult `json:"step_results"`
	Error string `json:"error,omitempty"`
}

// TestStepResult is the outcome of one step.
type TestStepResult struct {
	Scenario string `json:"scenario"`
	Step TestStep `json:"step"`
	Result TestResult `json:"result"`
	StartTime time.Time `json:"start_time"`
	EndTime time.Time `json:"end_time"`
	Duration time.Duration `json:"duration"`
	// Response is whatever the action returned, kept for Store and the JSON report.
	Response any `json:"response,omitempty"`
	Error string `json:"error,omitempty"`
	RetryCount int `json:"retry_count"`
}

// TestRunner executes scenarios.
type TestRunner interface {
	Run(ctx context.Context, config TestConfiguration, scenarios []TestScenario) (*TestSuiteResult, error)
}

// TestScenarioLoader reads and filters scenario definitions.
type TestScenarioLoader interface {
	LoadScenarios(configPath string) ([]TestScenario, error)
	FilterScenarios(scenarios []TestScenario, config TestConfiguration) []TestScenario
}

// TestReporter receives progress events from the runner. In parallel mode step output
// is buffered per scenario and flushed when the scenario ends.
type TestReporter interface {
	ReportStart(config TestConfiguration)
	ReportScenarioStart(scenario TestScenario)
	ReportStepResult(stepResult TestStepResult)
	ReportScenarioResult(scenarioResult TestScenarioResult)
	ReportSuiteResult(suiteResult TestSuiteResult)
	SetParallelMode(parallel bool)
}

package testing

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"ccptests/internal/app"
)

// OutputFormat selects how results are reported.
type OutputFormat string

const (
	// OutputConsole prints progress and a summary table for humans
	OutputConsole OutputFormat = "console"
	// OutputQuiet prints failures and one summary line
	OutputQuiet OutputFormat = "quiet"
	// OutputJSON prints the suite result as JSON at the end of the run
	OutputJSON OutputFormat = "json"
)

// DefaultTestConfiguration returns a default test configuration
func DefaultTestConfiguration() TestConfiguration {
	return TestConfiguration{
		Timeout:    2 * time.Hour,
		Parallel:   1,
		ConfigPath: DefaultScenarioPath,
	}
}

// TestFramework holds all components needed for testing
type TestFramework struct {
	Runner   TestRunner
	Loader   TestScenarioLoader
	Reporter TestReporter
	Actions  *Registry
	Metrics  *Metrics
	Logger   TestLogger
}

// FrameworkOptions configures NewTestFramework.
type FrameworkOptions struct {
	Out        io.Writer
	Format     OutputFormat
	Verbose    bool
	Debug      bool
	ReportPath string
	// Actions replaces the built-in action registry.
	Actions *Registry
	// RunnerOptions are passed on to the runner.
	RunnerOptions []RunnerOption
}

// NewTestFramework creates a fully configured test framework running against services.
func NewTestFramework(services *app.Services, opts FrameworkOptions) (*TestFramework, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = OutputConsole
	}

	var (
		logger   TestLogger
		reporter TestReporter
	)
	switch format {
	case OutputConsole:
		logger = NewWriterLogger(out, os.Stderr, opts.Verbose, opts.Debug)
		reporter = NewTestReporter(out, opts.Verbose, opts.Debug, opts.ReportPath)
	case OutputQuiet:
		logger = NewStructuredLogger(opts.Verbose, opts.Debug)
		reporter = NewQuietReporter(out)
	case OutputJSON:
		// Anything but the final document would corrupt the output.
		logger = NewStructuredLogger(opts.Verbose, opts.Debug)
		reporter = NewJSONReporter(out)
	default:
		return nil, fmt.Errorf("unknown output format %q (want console, quiet or json)", format)
	}

	actions := opts.Actions
	if actions == nil {
		actions = DefaultRegistry()
	}
	metrics := NewMetrics()
	loader := NewTestScenarioLoader(opts.Debug, logger, actions)

	runnerOpts := append([]RunnerOption{WithLogger(logger), WithMetrics(metrics)}, opts.RunnerOptions...)
	runner := NewTestRunner(services, actions, loader, reporter, opts.Debug, runnerOpts...)

	return &TestFramework{
		Runner:   runner,
		Loader:   loader,
		Reporter: reporter,
		Actions:  actions,
		Metrics:  metrics,
		Logger:   logger,
	}, nil
}

// ValidateConfiguration validates a test configuration
func ValidateConfiguration(config TestConfiguration) error {
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if config.Parallel < 1 {
		return fmt.Errorf("parallel workers must be at least 1")
	}
	if config.Category != "" && !slices.Contains(ValidCategories, config.Category) {
		return fmt.Errorf("unknown category %q", config.Category)
	}
	if config.Component != "" && !slices.Contains(ValidComponents, config.Component) {
		return fmt.Errorf("unknown component %q", config.Component)
	}
	return nil
}

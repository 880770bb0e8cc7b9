package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ccptests/internal/app"
	"ccptests/internal/testing"
	"ccptests/pkg/logging"
)

// testOptions are the flags of the test command.
type testOptions struct {
	timeout      time.Duration
	verbose      bool
	debug        bool
	category     string
	component    string
	scenario     string
	tags         []string
	scenarioPath string
	reportPath   string
	metricsPath  string
	output       string
	failFast     bool
	parallel     int
	validate     bool
	watchEnv     bool
}

func categoryNames() []string {
	names := make([]string, 0, len(testing.ValidCategories))
	for _, c := range testing.ValidCategories {
		names = append(names, string(c))
	}
	return names
}

func componentNames() []string {
	names := make([]string, 0, len(testing.ValidComponents))
	for _, c := range testing.ValidComponents {
		names = append(names, string(c))
	}
	return names
}

func newTestCmd(g *globalOptions) *cobra.Command {
	o := &testOptions{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run acceptance scenarios against the lab environment",
		Long: `The test command runs YAML scenarios against the lab environment described by
the environment configuration. Each scenario is a list of steps; every step calls
an action (ssh.exec, kube.wait_pod_phase, ccp.run, stacklight.log_count, ...) and
checks its response against the expectations of the step.

Scenarios may name a snapshot to revert to before they run, store step responses
for later steps to reference through templates, retry steps and poll until an
expected state is reached. Cleanup steps always run.

Test selection:
  --category     smoke, system, stacklight or destructive
  --component    k8s, ccp, stacklight, underlay or config
  --scenario     a single scenario by name
  --tag          scenarios carrying any of the tags

Example usage:
  ccptest test                                  # Run every scenario under ./scenarios
  ccptest test --category=smoke                 # Run the smoke checks only
  ccptest test --scenario=keystone-deploy -v    # Run one scenario with step details
  ccptest test --parallel=4 --fail-fast         # Four workers, stop at the first failure
  ccptest test --report=logs --metrics=logs/ccptest.prom
  ccptest test --validate                       # Check scenarios without running them`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !o.validate && (o.parallel < 1 || o.parallel > 50) {
				return fmt.Errorf("parallel workers must be between 1 and 50, got %d", o.parallel)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.validate {
				return runScenarioValidation(cmd, o)
			}
			return runTest(cmd, g, o)
		},
	}

	// Test execution configuration
	cmd.Flags().DurationVar(&o.timeout, "timeout", 2*time.Hour, "Overall test execution timeout")
	cmd.Flags().BoolVar(&o.failFast, "fail-fast", false, "Stop test execution on first failure")
	cmd.Flags().IntVar(&o.parallel, "parallel", 1, "Number of parallel test workers (1-50)")

	// Output and debugging
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose test output")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Show step responses and debug logging")
	cmd.Flags().StringVarP(&o.output, "output", "o", string(testing.OutputConsole), "Output format: console, quiet or json")

	// Test selection and filtering
	cmd.Flags().StringVar(&o.category, "category", "", "Run scenarios of one category")
	cmd.Flags().StringVar(&o.component, "component", "", "Run scenarios of one component")
	cmd.Flags().StringVar(&o.scenario, "scenario", "", "Run a specific scenario by name")
	cmd.Flags().StringSliceVar(&o.tags, "tag", nil, "Run scenarios carrying any of these tags")

	// Scenarios and reporting
	cmd.Flags().StringVar(&o.scenarioPath, "scenarios", testing.DefaultScenarioPath, "Scenario file or directory")
	cmd.Flags().StringVar(&o.reportPath, "report", "", "Directory to save a JSON report in")
	cmd.Flags().StringVar(&o.metricsPath, "metrics", "", "File to write Prometheus metrics to (textfile format)")

	cmd.Flags().BoolVar(&o.watchEnv, "watch-env", true, "Pick up underlay nodes added to the environment configuration during the run")

	// Validation mode
	cmd.Flags().BoolVar(&o.validate, "validate", false, "Validate scenarios without running them")
	cmd.MarkFlagsMutuallyExclusive("validate", "fail-fast")
	cmd.MarkFlagsMutuallyExclusive("validate", "parallel")
	cmd.MarkFlagsMutuallyExclusive("validate", "report")
	cmd.MarkFlagsMutuallyExclusive("validate", "metrics")

	// Shell completion for test flags
	_ = cmd.RegisterFlagCompletionFunc("category", fixedCompletion(categoryNames()))
	_ = cmd.RegisterFlagCompletionFunc("component", fixedCompletion(componentNames()))
	_ = cmd.RegisterFlagCompletionFunc("output", fixedCompletion([]string{"console", "quiet", "json"}))
	_ = cmd.RegisterFlagCompletionFunc("scenario", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		scenarios, err := testing.NewTestScenarioLoader(false, testing.NewStructuredLogger(false, false), nil).LoadScenarios(o.scenarioPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return testing.ScenarioNames(scenarios), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func fixedCompletion(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// configuration turns the flags into a test configuration.
func (o *testOptions) configuration() testing.TestConfiguration {
	return testing.TestConfiguration{
		Timeout:     o.timeout,
		Category:    testing.TestCategory(o.category),
		Component:   testing.TestComponent(o.component),
		Scenario:    o.scenario,
		Tags:        o.tags,
		Parallel:    o.parallel,
		FailFast:    o.failFast,
		Verbose:     o.verbose,
		Debug:       o.debug,
		ConfigPath:  o.scenarioPath,
		ReportPath:  o.reportPath,
		MetricsPath: o.metricsPath,
	}
}

func runTest(cmd *cobra.Command, g *globalOptions, o *testOptions) error {
	testConfig := o.configuration()
	if err := testing.ValidateConfiguration(testConfig); err != nil {
		return err
	}

	// Handle interrupts gracefully: cleanup steps still get to run.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := newApplication(cmd, g)
	if err != nil {
		return err
	}
	defer application.Close()

	if o.watchEnv {
		stopWatching, err := application.WatchEnvConfig(ctx)
		if err != nil {
			logging.Warn("CLI", "Not watching the environment configuration: %v", err)
		} else {
			defer stopWatching()
		}
	}

	return runSuite(ctx, cmd, application.Services(), o, testConfig)
}

func runSuite(ctx context.Context, cmd *cobra.Command, services *app.Services, o *testOptions, testConfig testing.TestConfiguration) error {
	framework, err := testing.NewTestFramework(services, testing.FrameworkOptions{
		Out:        cmd.OutOrStdout(),
		Format:     testing.OutputFormat(o.output),
		Verbose:    o.verbose,
		Debug:      o.debug,
		ReportPath: o.reportPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create test framework: %w", err)
	}

	scenarioPath := testing.GetScenarioPath(o.scenarioPath)
	scenarios, err := framework.Loader.LoadScenarios(scenarioPath)
	if err != nil {
		return fmt.Errorf("failed to load test scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "⚠️  No test scenarios found in %s\n", scenarioPath)
		return nil
	}

	result, err := framework.Runner.Run(ctx, testConfig, scenarios)
	if err != nil {
		return fmt.Errorf("test execution failed: %w", err)
	}

	if !result.Succeeded() {
		return &TestsFailedError{
			Failed: result.FailedScenarios + result.ErrorScenarios,
			Total:  result.TotalScenarios,
		}
	}
	return nil
}

// runScenarioValidation checks scenarios against the registered actions without
// touching the lab.
func runScenarioValidation(cmd *cobra.Command, o *testOptions) error {
	out := cmd.OutOrStdout()
	logger := testing.NewWriterLogger(out, cmd.ErrOrStderr(), o.verbose, o.debug)
	actions := testing.DefaultRegistry()

	testConfig := o.configuration()
	// The loader rejects unknown actions outright; validation reports them instead.
	scenarios, err := testing.LoadAndFilterScenarios(testConfig, logger, nil)
	if err != nil {
		return fmt.Errorf("failed to load test scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		fmt.Fprintf(out, "⚠️  No test scenarios found in %s\n", testing.GetScenarioPath(o.scenarioPath))
		return nil
	}

	results := testing.ValidateScenarios(scenarios, actions)
	fmt.Fprint(out, testing.FormatValidationResults(results, o.verbose))

	if results.TotalErrors > 0 {
		fmt.Fprintf(out, "\n❌ Validation failed with %d errors\n", results.TotalErrors)
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintf(out, "\n✅ All scenarios passed validation!\n")
	return nil
}

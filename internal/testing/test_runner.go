package testing

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"ccptests/internal/app"
	"ccptests/pkg/keypath"
	"ccptests/pkg/poll"
)

// DefaultCleanupTimeout bounds cleanup steps that run after the scenario deadline
// has passed.
const DefaultCleanupTimeout = 5 * time.Minute

// DefaultStatePollInterval is the pause between attempts of a step waiting for state.
const DefaultStatePollInterval = 5 * time.Second

// testRunner implements the TestRunner interface
type testRunner struct {
	services *app.Services
	actions  *Registry
	loader   TestScenarioLoader
	reporter TestReporter
	metrics  *Metrics
	logger   TestLogger
	debug    bool

	statePollInterval time.Duration
	cleanupTimeout    time.Duration
}

// RunnerOption customizes a test runner.
type RunnerOption func(*testRunner)

// WithMetrics records step and scenario metrics into m.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *testRunner) { r.metrics = m }
}

// WithLogger replaces the default stdout logger.
func WithLogger(l TestLogger) RunnerOption {
	return func(r *testRunner) { r.logger = l }
}

// WithStatePollInterval sets the pause between attempts of wait_for_state steps.
func WithStatePollInterval(d time.Duration) RunnerOption {
	return func(r *testRunner) { r.statePollInterval = d }
}

// WithCleanupTimeout bounds cleanup steps started after the scenario deadline.
func WithCleanupTimeout(d time.Duration) RunnerOption {
	return func(r *testRunner) { r.cleanupTimeout = d }
}

// NewTestRunner creates a new test runner executing actions against services.
func NewTestRunner(services *app.Services, actions *Registry, loader TestScenarioLoader, reporter TestReporter, debug bool, opts ...RunnerOption) TestRunner {
	r := &testRunner{
		services:          services,
		actions:           actions,
		loader:            loader,
		reporter:          reporter,
		debug:             debug,
		logger:            NewStdoutLogger(false, debug),
		statePollInterval: DefaultStatePollInterval,
		cleanupTimeout:    DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes test scenarios according to the configuration
func (r *testRunner) Run(ctx context.Context, config TestConfiguration, scenarios []TestScenario) (*TestSuiteResult, error) {
	result := &TestSuiteResult{
		RunID:         uuid.NewString(),
		StartTime:     time.Now(),
		Configuration: config,
	}
	if r.metrics != nil {
		r.metrics.SetRunID(result.RunID)
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	r.reporter.ReportStart(config)

	filteredScenarios := r.loader.FilterScenarios(scenarios, config)
	result.TotalScenarios = len(filteredScenarios)
	result.ScenarioResults = make([]TestScenarioResult, 0, len(filteredScenarios))

	if len(filteredScenarios) > 0 {
		if config.Parallel <= 1 {
			r.reporter.SetParallelMode(false)
			r.runScenariosSequential(ctx, filteredScenarios, config, result)
		} else {
			r.reporter.SetParallelMode(true)
			r.runScenariosParallel(ctx, filteredScenarios, config, result)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	r.reporter.ReportSuiteResult(*result)

	if r.metrics != nil && config.MetricsPath != "" {
		if err := r.metrics.WriteTextfile(config.MetricsPath); err != nil {
			return result, fmt.Errorf("failed to write metrics to %s: %w", config.MetricsPath, err)
		}
	}
	return result, nil
}

func (r *testRunner) runScenariosSequential(ctx context.Context, scenarios []TestScenario, config TestConfiguration, suiteResult *TestSuiteResult) {
	stopped := false
	for _, scenario := range scenarios {
		var scenarioResult TestScenarioResult
		if stopped {
			scenarioResult = skippedResult(scenario, "not run: an earlier scenario failed")
		} else {
			scenarioResult = r.runScenario(ctx, scenario, suiteResult.RunID)
		}
		r.record(suiteResult, scenarioResult)

		if config.FailFast && isFailure(scenarioResult.Result) {
			stopped = true
		}
	}
}

// runScenariosParallel executes scenarios in parallel with a worker pool. Results
// are reported as they come in and kept in input order.
func (r *testRunner) runScenariosParallel(ctx context.Context, scenarios []TestScenario, config TestConfiguration, suiteResult *TestSuiteResult) {
	type job struct {
		index    int
		scenario TestScenario
	}
	type done struct {
		index  int
		result TestScenarioResult
	}

	jobs := make(chan job, len(scenarios))
	for i, scenario := range scenarios {
		jobs <- job{index: i, scenario: scenario}
	}
	close(jobs)

	results := make(chan done, len(scenarios))
	var stopped atomic.Bool

	var wg sync.WaitGroup
	numWorkers := min(config.Parallel, len(scenarios))
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				if stopped.Load() {
					results <- done{j.index, skippedResult(j.scenario, "not run: an earlier scenario failed")}
					continue
				}
				if r.debug {
					r.logger.Debug("🔄 Worker %d executing scenario: %s\n", workerID, j.scenario.Name)
				}
				res := r.runScenario(ctx, j.scenario, suiteResult.RunID)
				if config.FailFast && isFailure(res.Result) {
					stopped.Store(true)
				}
				results <- done{j.index, res}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*TestScenarioResult, len(scenarios))
	for d := range results {
		r.record(suiteResult, d.result)
		res := d.result
		ordered[d.index] = &res
		if config.FailFast && isFailure(res.Result) && r.debug {
			r.logger.Debug("🛑 Fail-fast triggered by scenario: %s\n", res.Scenario.Name)
		}
	}

	suiteResult.ScenarioResults = suiteResult.ScenarioResults[:0]
	for _, res := range ordered {
		suiteResult.ScenarioResults = append(suiteResult.ScenarioResults, *res)
	}
}

// record counts, reports and measures a finished scenario.
func (r *testRunner) record(suiteResult *TestSuiteResult, scenarioResult TestScenarioResult) {
	suiteResult.ScenarioResults = append(suiteResult.ScenarioResults, scenarioResult)
	r.updateCounters(suiteResult, scenarioResult)
	r.reporter.ReportScenarioResult(scenarioResult)
	if r.metrics != nil {
		r.metrics.ObserveScenario(scenarioResult)
	}
}

func (r *testRunner) runScenario(ctx context.Context, scenario TestScenario, runID string) (result TestScenarioResult) {
	if scenario.Skip {
		return skippedResult(scenario, "")
	}

	result = TestScenarioResult{
		Scenario:    scenario,
		StartTime:   time.Now(),
		StepResults: make([]TestStepResult, 0, len(scenario.Steps)+len(scenario.Cleanup)),
		Result:      ResultPassed,
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	r.reporter.ReportScenarioStart(scenario)

	scenarioCtx := ctx
	if scenario.Timeout > 0 {
		var cancel context.CancelFunc
		scenarioCtx, cancel = context.WithTimeout(ctx, scenario.Timeout)
		defer cancel()
	}

	if scenario.Snapshot != "" {
		if err := r.revertSnapshot(scenarioCtx, scenario.Snapshot); err != nil {
			result.Result = ResultError
			result.Error = err.Error()
			return result
		}
	}

	scenarioContext := NewScenarioContext(r.baseVariables(scenario, runID))

	for _, step := range scenario.Steps {
		stepResult := r.runStep(scenarioCtx, scenario.Name, step, scenarioContext)
		r.recordStep(&result, stepResult)

		if isFailure(stepResult.Result) {
			result.Result = stepResult.Result
			result.Error = fmt.Sprintf("step %s: %s", step.ID, stepResult.Error)
			break
		}
	}

	if len(scenario.Cleanup) > 0 {
		cleanupCtx := scenarioCtx
		if scenarioCtx.Err() != nil {
			var cancel context.CancelFunc
			cleanupCtx, cancel = context.WithTimeout(context.WithoutCancel(scenarioCtx), r.cleanupTimeout)
			defer cancel()
		}
		for _, cleanupStep := range scenario.Cleanup {
			stepResult := r.runStep(cleanupCtx, scenario.Name, cleanupStep, scenarioContext)
			r.recordStep(&result, stepResult)

			// Cleanup failures fail the scenario unless it already failed.
			if isFailure(stepResult.Result) && result.Result == ResultPassed {
				result.Result = stepResult.Result
				result.Error = fmt.Sprintf("cleanup step %s: %s", cleanupStep.ID, stepResult.Error)
			}
		}
	}

	return result
}

func (r *testRunner) recordStep(result *TestScenarioResult, stepResult TestStepResult) {
	result.StepResults = append(result.StepResults, stepResult)
	r.reporter.ReportStepResult(stepResult)
	if r.metrics != nil {
		r.metrics.ObserveStep(stepResult)
	}
}

func (r *testRunner) revertSnapshot(ctx context.Context, name string) error {
	if r.services == nil || r.services.Snapshots == nil {
		return fmt.Errorf("scenario requires snapshot %s but no snapshot manager is configured", name)
	}
	if !r.services.Snapshots.Enabled() {
		r.logger.Info("⏭️  Snapshots disabled, not reverting to %s\n", name)
		return nil
	}
	if err := r.services.Snapshots.Revert(ctx, name); err != nil {
		return fmt.Errorf("failed to revert to snapshot %s: %w", name, err)
	}
	if r.services.Underlay != nil {
		// Connections do not survive a revert.
		if err := r.services.RefreshUnderlay(); err != nil {
			return fmt.Errorf("failed to reconnect after reverting to %s: %w", name, err)
		}
	}
	return nil
}

// baseVariables are visible to every template of the scenario.
func (r *testRunner) baseVariables(scenario TestScenario, runID string) map[string]any {
	vars := map[string]any{
		"scenario": scenario.Name,
		"run_id":   runID,
	}
	if r.services == nil {
		return vars
	}
	s := r.services.Settings
	vars["env"] = map[string]any{
		"name":      s.EnvName,
		"namespace": s.Kube.Namespace,
		"ccp_node":  s.CCP.Node,
	}
	if r.services.Underlay != nil {
		nodes := make([]any, 0)
		for _, n := range r.services.Underlay.Nodes() {
			nodes = append(nodes, n)
		}
		vars["nodes"] = nodes
	}
	return vars
}

// runStep executes a single step with template resolution, retries and state waiting.
func (r *testRunner) runStep(ctx context.Context, scenarioName string, step TestStep, scenarioContext *ScenarioContext) (result TestStepResult) {
	result = TestStepResult{
		Scenario:  scenarioName,
		Step:      step,
		StartTime: time.Now(),
		Result:    ResultPassed,
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	action, ok := r.actions.Get(step.Action)
	if !ok {
		result.Result = ResultError
		result.Error = fmt.Sprintf("unknown action %q", step.Action)
		return result
	}

	processor := NewTemplateProcessor(scenarioContext)
	args, err := processor.ResolveArgs(step.Args)
	if err != nil {
		result.Result = ResultError
		result.Error = fmt.Sprintf("template resolution failed: %v", err)
		return result
	}
	expected, err := processor.ResolveExpectation(step.Expected)
	if err != nil {
		result.Result = ResultError
		result.Error = fmt.Sprintf("template resolution failed: %v", err)
		return result
	}
	if r.debug {
		r.logger.Debug("🔧 Step %s: Template resolution completed\n", step.ID)
	}

	var (
		response any
		callErr  error
		failure  string
	)
	attempt := func(ctx context.Context) bool {
		response, callErr = action(ctx, r.services, Args(args))
		failure = checkExpectations(expected, response, callErr)
		return failure == ""
	}
	execute := func() {
		if expected.WaitForState <= 0 {
			attempt(stepCtx)
			return
		}
		err := poll.Until(stepCtx, func(ctx context.Context) (bool, error) {
			return attempt(ctx), nil
		}, expected.WaitForState, r.statePollInterval, fmt.Sprintf("state of step %s", step.ID))
		if err != nil && failure == "" {
			failure = err.Error()
		}
	}

	execute()

	if failure != "" && step.Retry != nil && step.Retry.Count > 0 {
		delays := retryBackOff(step.Retry)
		for failure != "" && result.RetryCount < step.Retry.Count {
			if !sleepContext(stepCtx, delays.NextBackOff()) {
				break
			}
			result.RetryCount++
			if r.debug {
				r.logger.Debug("🔁 Step %s: retry %d/%d after: %s\n", step.ID, result.RetryCount, step.Retry.Count, failure)
			}
			execute()
		}
	}

	result.Response = response
	if step.Store != "" && response != nil {
		scenarioContext.StoreResult(step.Store, response)
		if r.debug {
			r.logger.Debug("💾 Step %s: Stored result as '%s'\n", step.ID, step.Store)
		}
	}

	if failure != "" {
		if callErr != nil && expected.Success {
			result.Result = ResultError
			result.Error = fmt.Sprintf("action failed: %v", callErr)
		} else {
			result.Result = ResultFailed
			result.Error = fmt.Sprintf("expectations not met: %s", failure)
		}
	}
	return result
}

// retryBackOff yields the delays between retries: Delay, then Delay multiplied by
// BackoffMultiplier on every further retry.
func retryBackOff(cfg *RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Delay
	b.RandomizationFactor = 0
	b.Multiplier = cfg.BackoffMultiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = max(cfg.Delay, time.Hour)
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// checkExpectations returns why the outcome does not match expected, or "".
func checkExpectations(expected TestExpectation, response any, err error) string {
	if expected.Success && err != nil {
		return fmt.Sprintf("expected success but got error: %v", err)
	}
	if !expected.Success && err == nil {
		return "expected an error but the action succeeded"
	}

	if err != nil {
		for _, want := range expected.ErrorContains {
			if !containsText(err.Error(), want) {
				return fmt.Sprintf("error %q does not contain %q", err.Error(), want)
			}
		}
	}

	if len(expected.Contains) > 0 || len(expected.NotContains) > 0 {
		text := responseText(response)
		for _, want := range expected.Contains {
			if !containsText(text, want) {
				return fmt.Sprintf("response does not contain %q", want)
			}
		}
		for _, unwanted := range expected.NotContains {
			if containsText(text, unwanted) {
				return fmt.Sprintf("response contains %q", unwanted)
			}
		}
	}

	paths := make([]string, 0, len(expected.Values))
	for p := range expected.Values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		actual, gerr := keypath.GetValue(response, p)
		if gerr != nil {
			return fmt.Sprintf("values.%s: %v", p, gerr)
		}
		if !compareValues(actual, expected.Values[p]) {
			return fmt.Sprintf("values.%s: expected %v, got %v", p, expected.Values[p], actual)
		}
	}
	return ""
}

// containsText reports whether text contains expected, ignoring case.
func containsText(text, expected string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(expected))
}

// responseText flattens a response into the text searched by contains checks.
func responseText(v any) string {
	var b strings.Builder
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case nil:
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				b.WriteString(k)
				b.WriteByte('\n')
				walk(t[k])
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		default:
			fmt.Fprintf(&b, "%v\n", t)
		}
	}
	walk(v)
	return b.String()
}

// compareValues reports whether an actual response value equals the expected value
// from a scenario file, treating numbers of different types as equal when their
// values are.
func compareValues(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}

	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return a == e
		}
	}

	actualVal := reflect.ValueOf(actual)
	expectedVal := reflect.ValueOf(expected)

	if actualVal.Kind() == reflect.Slice || actualVal.Kind() == reflect.Array {
		if expectedVal.Kind() != reflect.Slice && expectedVal.Kind() != reflect.Array {
			return false
		}
		if actualVal.Len() != expectedVal.Len() {
			return false
		}
		for i := 0; i < actualVal.Len(); i++ {
			if !compareValues(actualVal.Index(i).Interface(), expectedVal.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	if actualVal.Kind() == reflect.Map && expectedVal.Kind() == reflect.Map {
		if actualVal.Len() != expectedVal.Len() {
			return false
		}
		for _, key := range expectedVal.MapKeys() {
			actualValue := actualVal.MapIndex(key)
			if !actualValue.IsValid() {
				return false
			}
			if !compareValues(actualValue.Interface(), expectedVal.MapIndex(key).Interface()) {
				return false
			}
		}
		return true
	}

	if actualVal.Type().Comparable() && expectedVal.Type().Comparable() && actual == expected {
		return true
	}

	if expectedBool, ok := expected.(bool); ok {
		if actualStr, ok := actual.(string); ok {
			return actualStr == fmt.Sprint(expectedBool)
		}
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// updateCounters updates the result counters based on a scenario result
func (r *testRunner) updateCounters(suiteResult *TestSuiteResult, scenarioResult TestScenarioResult) {
	switch scenarioResult.Result {
	case ResultPassed:
		suiteResult.PassedScenarios++
	case ResultFailed:
		suiteResult.FailedScenarios++
	case ResultSkipped:
		suiteResult.SkippedScenarios++
	case ResultError:
		suiteResult.ErrorScenarios++
	}
}

func isFailure(r TestResult) bool {
	return r == ResultFailed || r == ResultError
}

func skippedResult(scenario TestScenario, reason string) TestScenarioResult {
	now := time.Now()
	return TestScenarioResult{
		Scenario:  scenario,
		Result:    ResultSkipped,
		StartTime: now,
		EndTime:   now,
		Error:     reason,
	}
}

package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	pkgstrings "ccptests/pkg/strings"
)

// ReportFilePrefix starts the name of every JSON report file.
const ReportFilePrefix = "ccptest-report-"

// testReporter implements the TestReporter interface
type testReporter struct {
	out        io.Writer
	verbose    bool
	debug      bool
	reportPath string

	mu              sync.Mutex
	parallelMode    bool
	scenarioBuffers map[string]string
}

// NewTestReporter creates a console reporter writing to out. With a reportPath the
// suite result is also saved there as JSON.
func NewTestReporter(out io.Writer, verbose, debug bool, reportPath string) TestReporter {
	if out == nil {
		out = os.Stdout
	}
	return &testReporter{
		out:             out,
		verbose:         verbose,
		debug:           debug,
		reportPath:      reportPath,
		scenarioBuffers: make(map[string]string),
	}
}

// SetParallelMode switches compact output to per-scenario buffers so lines from
// concurrent scenarios do not interleave.
func (r *testReporter) SetParallelMode(parallel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parallelMode = parallel
	if parallel {
		r.scenarioBuffers = make(map[string]string)
	}
}

func (r *testReporter) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// ReportStart prints the run header and, when verbose, the effective options.
func (r *testReporter) ReportStart(config TestConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("🧪 Starting ccptest scenarios\n")
	if !r.verbose {
		return
	}
	r.printf("\n⚙️  Configuration:\n")
	r.printf("   • Category: %s\n", stringOrDefault(string(config.Category), "all"))
	r.printf("   • Component: %s\n", stringOrDefault(string(config.Component), "all"))
	r.printf("   • Scenario: %s\n", stringOrDefault(config.Scenario, "all"))
	if len(config.Tags) > 0 {
		r.printf("   • Tags: %s\n", strings.Join(config.Tags, ", "))
	}
	r.printf("   • Parallel workers: %d\n", config.Parallel)
	r.printf("   • Fail fast: %t\n", config.FailFast)
	r.printf("   • Timeout: %v\n", config.Timeout)
	if config.ConfigPath != "" {
		r.printf("   • Config path: %s\n", config.ConfigPath)
	}
	if config.ReportPath != "" {
		r.printf("   • Report path: %s\n", config.ReportPath)
	}
	r.printf("\n")
}

// ReportScenarioStart opens the output block of a scenario.
func (r *testReporter) ReportScenarioStart(scenario TestScenario) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.verbose {
		if r.parallelMode {
			r.scenarioBuffers[scenario.Name] = fmt.Sprintf("🎯 %s... ", scenario.Name)
		} else {
			r.printf("🎯 %s... ", scenario.Name)
		}
		return
	}

	r.printf("🎯 Starting scenario: %s (%s/%s)\n", scenario.Name, scenario.Category, scenario.Component)
	if scenario.Description != "" {
		r.printf("   📝 Description: %s\n", scenario.Description)
	}
	if len(scenario.Tags) > 0 {
		r.printf("   🏷️  Tags: %s\n", strings.Join(scenario.Tags, ", "))
	}
	if scenario.Snapshot != "" {
		r.printf("   📸 Snapshot: %s\n", scenario.Snapshot)
	}
	r.printf("   📋 Steps: %d\n", len(scenario.Steps))
	if len(scenario.Cleanup) > 0 {
		r.printf("   🧹 Cleanup steps: %d\n", len(scenario.Cleanup))
	}
	if scenario.Timeout > 0 {
		r.printf("   ⏱️  Timeout: %v\n", scenario.Timeout)
	}
	r.printf("\n")
}

// ReportStepResult prints one step line; compact mode prints nothing per step.
func (r *testReporter) ReportStepResult(stepResult TestStepResult) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	step := stepResult.Step
	r.printf("   %s Step: %s (%v)\n", resultSymbol(stepResult.Result), step.ID, stepResult.Duration)
	if step.Description != "" {
		r.printf("      📝 Description: %s\n", step.Description)
	}
	r.printf("      🔧 Action: %s\n", step.Action)

	if len(step.Args) > 0 {
		r.printf("      📥 Arguments:\n")
		keys := make([]string, 0, len(step.Args))
		for k := range step.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.printf("         • %s: %s\n", k, formatValue(step.Args[k]))
		}
	}
	if stepResult.RetryCount > 0 {
		r.printf("      🔄 Retries: %d\n", stepResult.RetryCount)
	}
	if r.debug && stepResult.Response != nil {
		r.printf("      📤 Response:\n%s\n", pkgstrings.Indent(formatResponse(stepResult.Response), "         "))
	}
	if stepResult.Error != "" {
		r.printf("      ❌ Error: %s\n", stepResult.Error)
	}
	r.printf("\n")
}

// ReportScenarioResult closes the scenario block and flushes its buffer in parallel mode.
func (r *testReporter) ReportScenarioResult(scenarioResult TestScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbol := resultSymbol(scenarioResult.Result)
	name := scenarioResult.Scenario.Name

	if !r.verbose {
		switch {
		case r.parallelMode:
			start, ok := r.scenarioBuffers[name]
			delete(r.scenarioBuffers, name)
			if !ok {
				start = fmt.Sprintf("🎯 %s... ", name)
			}
			r.printf("%s%s (%v)\n", start, symbol, scenarioResult.Duration)
		case scenarioResult.Result == ResultSkipped:
			// Skipped scenarios never reported a start.
			r.printf("🎯 %s... %s\n", name, symbol)
		default:
			r.printf("%s (%v)\n", symbol, scenarioResult.Duration)
		}
		if scenarioResult.Error != "" && scenarioResult.Result != ResultSkipped {
			r.printf("   %s\n", pkgstrings.OneLine(scenarioResult.Error, 160))
		}
		return
	}

	r.printf("%s Scenario completed: %s (%v)\n", symbol, name, scenarioResult.Duration)
	if scenarioResult.Error != "" {
		r.printf("   ❌ Scenario Error: %s\n", scenarioResult.Error)
	}

	var passed, failed, errs int
	for _, s := range scenarioResult.StepResults {
		switch s.Result {
		case ResultPassed:
			passed++
		case ResultFailed:
			failed++
		case ResultError:
			errs++
		}
	}
	r.printf("   📊 Step Summary: %d total", len(scenarioResult.StepResults))
	if passed > 0 {
		r.printf(", %d ✅ passed", passed)
	}
	if failed > 0 {
		r.printf(", %d ❌ failed", failed)
	}
	if errs > 0 {
		r.printf(", %d 💥 errors", errs)
	}
	r.printf("\n\n")
}

// ReportSuiteResult prints the summary table and writes the JSON report when configured.
func (r *testReporter) ReportSuiteResult(suiteResult TestSuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("\n🏁 Test Suite Complete (run %s)\n", suiteResult.RunID)
	if len(suiteResult.ScenarioResults) > 0 {
		r.printf("%s\n", summaryTable(suiteResult))
	}
	r.printf("⏱️  Duration: %v\n", suiteResult.Duration)
	r.printf("📊 Results:\n")
	r.printf("   ✅ Passed: %d\n", suiteResult.PassedScenarios)
	if suiteResult.FailedScenarios > 0 {
		r.printf("   ❌ Failed: %d\n", suiteResult.FailedScenarios)
	}
	if suiteResult.ErrorScenarios > 0 {
		r.printf("   💥 Errors: %d\n", suiteResult.ErrorScenarios)
	}
	if suiteResult.SkippedScenarios > 0 {
		r.printf("   ⏭️  Skipped: %d\n", suiteResult.SkippedScenarios)
	}
	r.printf("   📈 Total: %d\n", suiteResult.TotalScenarios)

	successRate := 0.0
	if suiteResult.TotalScenarios > 0 {
		successRate = float64(suiteResult.PassedScenarios) / float64(suiteResult.TotalScenarios) * 100
	}
	r.printf("   📏 Success Rate: %.1f%%\n", successRate)

	if suiteResult.Succeeded() {
		r.printf("\n🎉 All tests passed!\n")
	} else {
		r.printf("\n💔 Some tests failed\n")
	}

	if r.reportPath != "" {
		path, err := SaveReport(r.reportPath, suiteResult)
		if err != nil {
			r.printf("⚠️  Failed to save detailed report: %v\n", err)
		} else {
			r.printf("📄 Detailed report saved to: %s\n", path)
		}
	}
}

// summaryTable renders one row per scenario.
func summaryTable(suiteResult TestSuiteResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SCENARIO"),
		text.FgHiCyan.Sprint("CATEGORY"),
		text.FgHiCyan.Sprint("COMPONENT"),
		text.FgHiCyan.Sprint("RESULT"),
		text.FgHiCyan.Sprint("DURATION"),
		text.FgHiCyan.Sprint("ERROR"),
	})
	for _, res := range suiteResult.ScenarioResults {
		t.AppendRow(table.Row{
			res.Scenario.Name,
			string(res.Scenario.Category),
			string(res.Scenario.Component),
			resultColor(res.Result).Sprint(string(res.Result)),
			res.Duration.Round(10*time.Millisecond).String(),
			pkgstrings.OneLine(res.Error, 60),
		})
	}
	return t.Render()
}

// SaveReport writes the suite result as JSON into dir, named after the run, and
// returns the file path.
func SaveReport(dir string, suiteResult TestSuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(suiteResult, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	path := filepath.Join(dir, ReportFilePrefix+suiteResult.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func resultSymbol(result TestResult) string {
	switch result {
	case ResultPassed:
		return "✅"
	case ResultFailed:
		return "❌"
	case ResultSkipped:
		return "⏭️"
	case ResultError:
		return "💥"
	default:
		return "❓"
	}
}

func resultColor(result TestResult) text.Colors {
	switch result {
	case ResultPassed:
		return text.Colors{text.FgGreen}
	case ResultSkipped:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgRed, text.Bold}
	}
}

// formatValue formats an argument for display
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case map[string]any, []any:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%v", value)
}

// formatResponse renders a response as YAML, the format scenarios are written in.
func formatResponse(response any) string {
	data, err := yaml.Marshal(response)
	if err != nil {
		return fmt.Sprintf("%v", response)
	}
	return strings.TrimRight(string(data), "\n")
}

func stringOrDefault(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

// NewQuietReporter creates a reporter that only outputs failures and a summary line
func NewQuietReporter(out io.Writer) TestReporter {
	if out == nil {
		out = os.Stdout
	}
	return &quietReporter{out: out}
}

type quietReporter struct {
	out io.Writer
	mu  sync.Mutex
}

func (r *quietReporter) ReportStart(TestConfiguration) {}
func (r *quietReporter) ReportScenarioStart(TestScenario) {}
func (r *quietReporter) ReportStepResult(TestStepResult) {}
func (r *quietReporter) SetParallelMode(bool) {}

func (r *quietReporter) ReportScenarioResult(scenarioResult TestScenarioResult) {
	if !isFailure(scenarioResult.Result) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s %s: %s\n", resultSymbol(scenarioResult.Result), scenarioResult.Scenario.Name, scenarioResult.Error)
}

func (r *quietReporter) ReportSuiteResult(suiteResult TestSuiteResult) {
	if suiteResult.Succeeded() {
		fmt.Fprintf(r.out, "✅ All %d tests passed (%v)\n", suiteResult.TotalScenarios, suiteResult.Duration)
		return
	}
	fmt.Fprintf(r.out, "❌ %d/%d tests failed (%v)\n",
		suiteResult.FailedScenarios+suiteResult.ErrorScenarios,
		suiteResult.TotalScenarios,
		suiteResult.Duration)
}

// NewJSONReporter creates a reporter that prints the suite result as JSON
func NewJSONReporter(out io.Writer) TestReporter {
	if out == nil {
		out = os.Stdout
	}
	return &jsonReporter{out: out}
}

type jsonReporter struct {
	out io.Writer
}

func (r *jsonReporter) ReportStart(TestConfiguration) {}
func (r *jsonReporter) ReportScenarioStart(TestScenario) {}
func (r *jsonReporter) ReportStepResult(TestStepResult) {}
func (r *jsonReporter) ReportScenarioResult(TestScenarioResult) {}
func (r *jsonReporter) SetParallelMode(bool) {}

func (r *jsonReporter) ReportSuiteResult(suiteResult TestSuiteResult) {
	data, err := json.MarshalIndent(suiteResult, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "{\"error\": %q}\n", err.Error())
		return
	}
	fmt.Fprintln(r.out, string(data))
}

package testing

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSuite() TestSuiteResult {
	passed := TestScenarioResult{
		Scenario: TestScenario{Name: "k8s-smoke", Category: CategorySmoke, Component: ComponentK8s},
		Result:   ResultPassed,
		Duration: 1500 * time.Millisecond,
	}
	failed := TestScenarioResult{
		Scenario: TestScenario{Name: "ccp-deploy", Category: CategorySystem, Component: ComponentCCP},
		Result:   ResultFailed,
		Duration: time.Minute,
		Error:    "step deploy: expectations not met:\n  response does not contain \"Running\"",
	}
	return TestSuiteResult{
		RunID:           "run-1",
		Duration:        61 * time.Second,
		TotalScenarios:  2,
		PassedScenarios: 1,
		FailedScenarios: 1,
		ScenarioResults: []TestScenarioResult{passed, failed},
	}
}

func TestTestReporter_Sequential(t *testing.T) {
	var out bytes.Buffer
	r := NewTestReporter(&out, false, false, "")

	r.ReportStart(TestConfiguration{})
	r.SetParallelMode(false)
	suite := sampleSuite()
	for _, sr := range suite.ScenarioResults {
		r.ReportScenarioStart(sr.Scenario)
		r.ReportScenarioResult(sr)
	}
	r.ReportSuiteResult(suite)

	s := out.String()
	assert.Contains(t, s, "🧪 Starting ccptest scenarios")
	assert.Contains(t, s, "🎯 k8s-smoke... ✅ (1.5s)")
	assert.Contains(t, s, "🎯 ccp-deploy... ❌ (1m0s)")
	assert.Contains(t, s, `response does not contain "Running"`)
	assert.Contains(t, s, "run run-1")
	assert.Contains(t, s, "SCENARIO")
	assert.Contains(t, s, "📏 Success Rate: 50.0%")
	assert.Contains(t, s, "💔 Some tests failed")
}

func TestTestReporter_VerboseStep(t *testing.T) {
	var out bytes.Buffer
	r := NewTestReporter(&out, true, true, "")

	r.ReportStepResult(TestStepResult{
		Step: TestStep{
			ID:          "check",
			Description: "node answers",
			Action:      "ssh.exec",
			Args:        map[string]any{"node": "master", "command": "hostname"},
		},
		Result:     ResultPassed,
		Response:   map[string]any{"stdout": "master"},
		RetryCount: 1,
	})

	s := out.String()
	assert.Contains(t, s, "✅ Step: check")
	assert.Contains(t, s, "🔧 Action: ssh.exec")
	assert.Contains(t, s, `• command: "hostname"`)
	assert.Contains(t, s, "🔄 Retries: 1")
	assert.Contains(t, s, "stdout: master")
}

func TestTestReporter_SavesReport(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	r := NewTestReporter(&out, false, false, dir)

	r.ReportSuiteResult(sampleSuite())

	path := filepath.Join(dir, ReportFilePrefix+"run-1.json")
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded TestSuiteResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.ScenarioResults, 2)
}

func TestQuietReporter(t *testing.T) {
	var out bytes.Buffer
	r := NewQuietReporter(&out)
	suite := sampleSuite()
	for _, sr := range suite.ScenarioResults {
		r.ReportScenarioResult(sr)
	}
	r.ReportSuiteResult(suite)

	s := out.String()
	assert.NotContains(t, s, "k8s-smoke")
	assert.Contains(t, s, "❌ ccp-deploy: step deploy")
	assert.Contains(t, s, "❌ 1/2 tests failed")
}

func TestJSONReporter(t *testing.T) {
	var out bytes.Buffer
	r := NewJSONReporter(&out)
	r.ReportSuiteResult(sampleSuite())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.EqualValues(t, 1, decoded["failed_scenarios"])
}

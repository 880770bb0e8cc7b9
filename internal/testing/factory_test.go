package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestFramework_EndToEnd(t *testing.T) {
	lab := newFakeLab()
	lab.on("10.0.0.2", "hostname", reply{stdout: "master\n"})
	lab.on("10.0.0.3", "hostname", reply{stdout: "slave-0\n"})
	services := newTestServices(t, lab, nil)

	dir := t.TempDir()
	writeScenarioFile(t, dir, "hosts.yaml", `name: hostnames
category: smoke
component: underlay
steps:
  - id: master
    action: ssh.exec
    args:
      node: master
      command: hostname
    expected:
      success: true
      values:
        stdout: master
    store: master
  - id: everywhere
    action: ssh.exec_all
    args:
      command: hostname
    expected:
      success: true
      contains: ["{{ .master.stdout }}", slave-0]
`)

	var out bytes.Buffer
	fw, err := NewTestFramework(services, FrameworkOptions{
		Out:           &out,
		Format:        OutputJSON,
		RunnerOptions: []RunnerOption{WithStatePollInterval(time.Millisecond)},
	})
	require.NoError(t, err)

	config := DefaultTestConfiguration()
	config.ConfigPath = dir
	require.NoError(t, ValidateConfiguration(config))

	scenarios, err := fw.Loader.LoadScenarios(config.ConfigPath)
	require.NoError(t, err)

	res, err := fw.Runner.Run(context.Background(), config, scenarios)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.ScenarioResults[0].Error)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.EqualValues(t, 1, decoded["passed_scenarios"])
}

func TestNewTestFramework_UnknownFormat(t *testing.T) {
	_, err := NewTestFramework(nil, FrameworkOptions{Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestValidateConfiguration(t *testing.T) {
	valid := DefaultTestConfiguration()
	require.NoError(t, ValidateConfiguration(valid))

	tests := map[string]func(*TestConfiguration){
		"timeout":   func(c *TestConfiguration) { c.Timeout = 0 },
		"parallel":  func(c *TestConfiguration) { c.Parallel = 0 },
		"category":  func(c *TestConfiguration) { c.Category = "perf" },
		"component": func(c *TestConfiguration) { c.Component = "nova" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultTestConfiguration()
			mutate(&c)
			assert.Error(t, ValidateConfiguration(c))
		})
	}
}

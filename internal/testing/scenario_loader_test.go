package testing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keystoneScenario = `name: keystone-deploy
category: system
component: ccp
tags: [openstack, keystone]
snapshot: k8s-ready
steps:
  - id: deploy
    action: ccp.run
    args:
      args: deploy -c keystone
    expected:
      success: true
    retry:
      count: 2
      delay: 5s
cleanup:
  - id: cleanup
    action: ccp.run
    args:
      args: cleanup
    expected:
      success: true
`

const smokeScenario = `name: k8s-smoke
category: smoke
component: k8s
tags: [k8s]
steps:
  - id: nodes
    action: ssh.exec_all
    args:
      command: kubectl get nodes
    expected:
      success: true
`

func TestScenarioLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "keystone.yaml", keystoneScenario)
	writeScenarioFile(t, filepath.Join(dir, "smoke"), "k8s.yml", smokeScenario)
	writeScenarioFile(t, dir, "README.md", "not a scenario")

	loader := NewTestScenarioLoader(false, &mockTestLogger{}, DefaultRegistry())
	scenarios, err := loader.LoadScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"k8s-smoke", "keystone-deploy"}, ScenarioNames(scenarios))

	var keystone TestScenario
	for _, s := range scenarios {
		if s.Name == "keystone-deploy" {
			keystone = s
		}
	}
	assert.Equal(t, "k8s-ready", keystone.Snapshot)
	require.NotNil(t, keystone.Steps[0].Retry)
	assert.Equal(t, 2, keystone.Steps[0].Retry.Count)
	assert.Len(t, keystone.Cleanup, 1)
}

func TestScenarioLoader_SingleFile(t *testing.T) {
	path := writeScenarioFile(t, t.TempDir(), "k8s.yaml", smokeScenario)

	scenarios, err := NewTestScenarioLoader(false, &mockTestLogger{}, nil).LoadScenarios(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, CategorySmoke, scenarios[0].Category)
}

func TestScenarioLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "category: smoke\ncomponent: k8s\nsteps:\n  - id: a\n    action: sleep\n",
			wantErr: "scenario name is required",
		},
		{
			name:    "unknown category",
			content: "name: x\ncategory: load\ncomponent: k8s\nsteps:\n  - id: a\n    action: sleep\n",
			wantErr: `unknown category "load"`,
		},
		{
			name:    "no steps",
			content: "name: x\ncategory: smoke\ncomponent: k8s\n",
			wantErr: "at least one step",
		},
		{
			name:    "duplicate step",
			content: "name: x\ncategory: smoke\ncomponent: k8s\nsteps:\n  - id: a\n    action: sleep\n  - id: a\n    action: sleep\n",
			wantErr: `duplicate step id "a"`,
		},
		{
			name:    "unknown action",
			content: "name: x\ncategory: smoke\ncomponent: k8s\nsteps:\n  - id: a\n    action: ssh.scp\n",
			wantErr: `unknown action "ssh.scp"`,
		},
		{
			name:    "negative retry",
			content: "name: x\ncategory: smoke\ncomponent: k8s\nsteps:\n  - id: a\n    action: sleep\n    retry:\n      count: -1\n",
			wantErr: "retry count cannot be negative",
		},
		{
			name:    "bad yaml",
			content: "name: [x\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenarioFile(t, t.TempDir(), "s.yaml", tt.content)
			_, err := NewTestScenarioLoader(false, &mockTestLogger{}, DefaultRegistry()).LoadScenarios(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestScenarioLoader_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "a.yaml", smokeScenario)
	writeScenarioFile(t, dir, "b.yaml", smokeScenario)

	_, err := NewTestScenarioLoader(false, &mockTestLogger{}, nil).LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate scenario name "k8s-smoke"`)
}

func TestScenarioLoader_MissingPath(t *testing.T) {
	_, err := NewTestScenarioLoader(false, &mockTestLogger{}, nil).LoadScenarios(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFilterScenarios(t *testing.T) {
	scenarios := []TestScenario{
		{Name: "k8s-smoke", Category: CategorySmoke, Component: ComponentK8s, Tags: []string{"k8s"}},
		{Name: "keystone-deploy", Category: CategorySystem, Component: ComponentCCP, Tags: []string{"openstack"}},
		{Name: "stacklight-logs", Category: CategorySystem, Component: ComponentStacklight},
	}
	loader := NewTestScenarioLoader(true, &mockTestLogger{}, nil)

	names := func(config TestConfiguration) []string {
		return ScenarioNames(loader.FilterScenarios(scenarios, config))
	}

	assert.Len(t, names(TestConfiguration{}), 3)
	assert.Equal(t, []string{"keystone-deploy", "stacklight-logs"}, names(TestConfiguration{Category: CategorySystem}))
	assert.Equal(t, []string{"stacklight-logs"}, names(TestConfiguration{Component: ComponentStacklight}))
	assert.Equal(t, []string{"k8s-smoke"}, names(TestConfiguration{Scenario: "k8s-smoke"}))
	assert.Equal(t, []string{"k8s-smoke", "keystone-deploy"}, names(TestConfiguration{Tags: []string{"openstack", "k8s"}}))
	assert.Empty(t, names(TestConfiguration{Category: CategorySmoke, Component: ComponentCCP}))
}

func TestLoadAndFilterScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenarioFile(t, dir, "keystone.yaml", keystoneScenario)
	writeScenarioFile(t, dir, "k8s.yaml", smokeScenario)

	scenarios, err := LoadAndFilterScenarios(TestConfiguration{ConfigPath: dir, Tags: []string{"keystone"}}, &mockTestLogger{}, DefaultRegistry())
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "keystone-deploy", scenarios[0].Name)

	assert.Equal(t, DefaultScenarioPath, GetScenarioPath(""))
}

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ccptests/internal/config"
	"ccptests/internal/underlay"
	"ccptests/pkg/keypath"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "ccptest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	for _, flag := range []string{"settings", "env-config", "log-level", "set"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, expected := range []string{"version", "test", "exec", "shell", "config", "env"} {
		assert.True(t, found[expected], "expected subcommand %s to be registered", expected)
	}
}

func TestVersionTemplate(t *testing.T) {
	root := newRootCmd(&globalOptions{})
	root.Version = "1.0.0"
	out, _, err := runCLIWith(root, "--version")
	assert.NoError(t, err)
	assert.Equal(t, "ccptest version 1.0.0\n", out)
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := runCLI(&globalOptions{}, "--help")
	assert.NoError(t, err)
	assert.Contains(t, out, "ccptest")
	assert.Contains(t, out, "acceptance scenarios")
}

func TestGetExitCode(t *testing.T) {
	execErr := &underlay.ExecError{
		Result:   &underlay.ExecResult{Node: "master", Command: "false", ExitCode: 1},
		Expected: []int{0},
	}
	missing := &keypath.MissingKeyError{Key: "tag", Keypath: "images"}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"generic", errors.New("boom"), ExitCodeError},
		{"tests failed", fmt.Errorf("run: %w", &TestsFailedError{Failed: 1, Total: 3}), ExitCodeTestsFailed},
		{"remote command", fmt.Errorf("exec: %w", execErr), ExitCodeRemoteCommand},
		{"missing key", fmt.Errorf("set: %w", missing), ExitCodeKeypath},
		{"type mismatch", &keypath.TypeMismatchError{Keypath: "a", Expected: "mapping", Got: "string"}, ExitCodeKeypath},
		{"index", &keypath.IndexOutOfRangeError{Keypath: "a", Index: 3, Length: 1}, ExitCodeKeypath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestTestsFailedError(t *testing.T) {
	err := &TestsFailedError{Failed: 2, Total: 5}
	assert.True(t, strings.HasPrefix(err.Error(), "2 of 5"))
}

func TestSettingsReport(t *testing.T) {
	assert.Empty(t, settingsReport(errors.New("boom")))

	errs := config.NewConfigurationErrorCollection()
	errs.Add(config.ConfigurationError{Source: config.SourceEnv, Field: "SSH_PORT", Message: "not an integer"})
	assert.Empty(t, settingsReport(fmt.Errorf("failed to load settings: %w", errs)))

	errs.Add(config.ConfigurationError{Source: config.SourceSettings, Field: "envName", Message: "is required"})
	report := settingsReport(fmt.Errorf("failed to load settings: %w", errs))
	assert.Contains(t, report, "2 problem(s)")
	assert.Contains(t, report, "Field: SSH_PORT")
	assert.Contains(t, report, "Error 2:")
}

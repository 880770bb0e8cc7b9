package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv replaces the environment lookup for the duration of the test.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = original })
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	withEnv(t, nil)
	t.Chdir(t.TempDir())

	settings, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettings_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "settings.yaml", `
envName: from-file
snapshotsEnabled: false
ssh:
  login: root
  dialTimeout: 10s
ccp:
  imagesTag: newton
  registry: registry.local:5000
`)
	withEnv(t, map[string]string{
		"IMAGES_TAG":          "ocata",
		"CCPTEST_IMAGES_TAG":  "pike",
		"ENV_NAME":            "from-env",
		"KUBE_ADMIN_PASS":     "secret",
		"CCPTEST_SSH_PORT":    "2222",
		"CCPTEST_LOG_FORMAT":  "json",
		"SNAPSHOT_ENABLED":    "yes",
		"CCPTEST_GRAFANA_URL": "http://10.0.0.2:3000",
	})

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", settings.EnvName)
	assert.True(t, settings.SnapshotsEnabled)
	assert.Equal(t, "root", settings.SSH.Login)
	assert.Equal(t, DefaultSSHPassword, settings.SSH.Password, "unset values keep defaults")
	assert.Equal(t, 2222, settings.SSH.Port)
	assert.Equal(t, 10*time.Second, settings.SSH.DialTimeout)
	assert.Equal(t, "pike", settings.CCP.ImagesTag, "prefixed variable wins over legacy name")
	assert.Equal(t, "registry.local:5000", settings.CCP.Registry)
	assert.Equal(t, "secret", settings.Kube.AdminPassword)
	assert.Equal(t, "json", settings.LogFormat)
	assert.Equal(t, "http://10.0.0.2:3000", settings.Stacklight.GrafanaURL)
}

func TestLoadSettings_CollectsErrors(t *testing.T) {
	withEnv(t, map[string]string{
		"SSH_PORT":         "twenty-two",
		"SNAPSHOT_ENABLED": "maybe",
		"REGISTRY":         "",
		"LOG_LEVEL":        "chatty",
	})
	t.Chdir(t.TempDir())

	_, err := LoadSettings("")
	require.Error(t, err)

	var errs *ConfigurationErrorCollection
	require.True(t, errors.As(err, &errs))
	assert.Equal(t, 4, errs.Count())

	fields := make([]string, 0, errs.Count())
	for _, e := range errs.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"SNAPSHOT_ENABLED", "SSH_PORT", "ccp.registry", "logLevel"}, fields)
	assert.Contains(t, errs.GetDetailedReport(), "twenty-two")
}

func TestLoadSettings_FileErrors(t *testing.T) {
	withEnv(t, nil)
	dir := t.TempDir()

	_, err := LoadSettings(filepath.Join(dir, "missing.yaml"))
	var errs *ConfigurationErrorCollection
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, ErrorTypeIO, errs.Errors[0].ErrorType)
	assert.NotEmpty(t, errs.Errors[0].Suggestions)

	path := writeFile(t, dir, "bad.yaml", "ssh:\n  port: [1, 2]\n")
	_, err = LoadSettings(path)
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, ErrorTypeParse, errs.Errors[0].ErrorType)
	assert.Equal(t, path, errs.Errors[0].FilePath)
}

func TestLoadSettings_DefaultFileInWorkingDirectory(t *testing.T) {
	withEnv(t, nil)
	dir := t.TempDir()
	writeFile(t, dir, DefaultSettingsFile, "envName: local-lab\n")
	t.Chdir(dir)

	settings, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "local-lab", settings.EnvName)
}

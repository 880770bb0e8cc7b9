package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
	crfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"ccptests/internal/config"
	"ccptests/internal/kube"
	"ccptests/internal/underlay"
)

const testEnvConfig = `underlay:
  ssh:
  - node_name: master
    host: 10.0.0.2
    roles: [master]
  - node_name: slave-1
    host: 10.0.0.3
    login: root
    password: r00t
`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testSettings(t *testing.T) (config.Settings, *config.EnvironmentConfig) {
	t.Helper()
	dir := t.TempDir()
	envPath := writeFile(t, filepath.Join(dir, "env", "env.yaml"), testEnvConfig)
	ec, err := config.LoadEnvironmentConfig(envPath)
	require.NoError(t, err)

	s := config.DefaultSettings()
	s.LogsDir = filepath.Join(dir, "logs")
	s.EnvConfigPath = envPath
	return s, ec
}

func noDial(context.Context, underlay.SSHCredential) (underlay.Session, error) {
	return nil, os.ErrPermission
}

func TestNewApplication(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, filepath.Join(dir, "env.yaml"), testEnvConfig)
	settingsPath := writeFile(t, filepath.Join(dir, "ccptest.yaml"),
		"envName: lab-1\nlogsDir: "+filepath.Join(dir, "logs")+"\nenvConfigPath: "+envPath+"\n")

	cfg := NewConfig(settingsPath)
	cfg.LogOutput = io.Discard
	cfg.LogLevel = "debug"
	cfg.Overrides = []string{"underlay.ssh[1].host=10.0.0.9"}

	a, err := NewApplication(cfg, WithDialer(noDial))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.Equal(t, "lab-1", a.Settings().EnvName)
	assert.Equal(t, "debug", a.Settings().LogLevel)
	assert.FileExists(t, filepath.Join(dir, "logs", LogFileName))

	s := a.Services()
	assert.Equal(t, []string{"master", "slave-1"}, s.Underlay.Nodes())
	host, err := s.Underlay.HostByNode("slave-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", host)

	_, err = s.RequireKube()
	assert.ErrorIs(t, err, ErrNoKubernetes)
}

func TestNewApplication_InvalidSettings(t *testing.T) {
	dir := t.TempDir()
	settingsPath := writeFile(t, filepath.Join(dir, "ccptest.yaml"), "logLevel: loud\n")

	cfg := NewConfig(settingsPath)
	cfg.LogOutput = io.Discard
	_, err := NewApplication(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load settings")
}

func TestLoadSettings_Overrides(t *testing.T) {
	dir := t.TempDir()
	settingsPath := writeFile(t, filepath.Join(dir, "ccptest.yaml"), "envName: lab-2\nlogsDir: "+dir+"\n")

	s, err := LoadSettings(NewConfig(settingsPath))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lab-2.env.yaml"), s.EnvConfigPath)

	cfg := NewConfig(settingsPath)
	cfg.EnvConfigPath = "custom.yaml"
	cfg.LogLevel = "warn"
	s, err = LoadSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "custom.yaml", s.EnvConfigPath)
	assert.Equal(t, "warn", s.LogLevel)
}

func TestDefaultEnvConfigPath(t *testing.T) {
	s := config.DefaultSettings()
	s.LogsDir = "out"
	s.EnvName = "lab"
	assert.Equal(t, filepath.Join("out", "lab.env.yaml"), DefaultEnvConfigPath(s))
}

func TestInitializeServices_SSHDefaults(t *testing.T) {
	settings, ec := testSettings(t)

	s, err := InitializeServices(settings, ec, WithDialer(noDial))
	require.NoError(t, err)

	master, err := s.Underlay.Credential("master")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSSHLogin, master.Login)
	assert.Equal(t, config.DefaultSSHPassword, master.Password)
	assert.Equal(t, 22, master.Port)

	slave, err := s.Underlay.Credential("slave-1")
	require.NoError(t, err)
	assert.Equal(t, "root", slave.Login)
	assert.Equal(t, "r00t", slave.Password)

	assert.NotNil(t, s.CCP)
	assert.NotNil(t, s.Snapshots)
	assert.NotNil(t, s.Stacklight)
	assert.NotNil(t, s.Health)
}

func TestInitializeServices_WithCluster(t *testing.T) {
	settings, ec := testSettings(t)
	cluster := kube.NewClusterForClients(fake.NewClientset(),
		crfake.NewClientBuilder().WithScheme(kube.NewScheme()).Build())

	s, err := InitializeServices(settings, ec, WithDialer(noDial), WithCluster(cluster))
	require.NoError(t, err)

	got, err := s.RequireKube()
	require.NoError(t, err)
	assert.Same(t, cluster, got)
}

func TestInitializeServices_BadKubeconfig(t *testing.T) {
	settings, ec := testSettings(t)
	settings.Kube.Kubeconfig = filepath.Join(t.TempDir(), "missing")

	_, err := InitializeServices(settings, ec, WithDialer(noDial))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubeconfig")
}

func TestWatchEnvConfig_RegistersNewNodes(t *testing.T) {
	settings, ec := testSettings(t)
	s, err := InitializeServices(settings, ec, WithDialer(noDial))
	require.NoError(t, err)

	reloaded := make(chan error, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop, err := watchEnvConfig(ctx, s, 50*time.Millisecond, func(err error) { reloaded <- err })
	require.NoError(t, err)
	defer stop()

	writeFile(t, ec.Path(), testEnvConfig+"  - node_name: slave-2\n    host: 10.0.0.4\n")

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("environment config was not reloaded")
	}
	assert.Equal(t, []string{"master", "slave-1", "slave-2"}, s.Underlay.Nodes())
}

package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ccptests/internal/app"
	"ccptests/internal/config"
	"ccptests/internal/underlay"
)

// mockTestLogger records everything logged through it.
type mockTestLogger struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (m *mockTestLogger) write(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(&m.buf, format, args...)
}

func (m *mockTestLogger) Debug(format string, args ...any) { m.write(format, args...) }
func (m *mockTestLogger) Info(format string, args ...any)  { m.write(format, args...) }
func (m *mockTestLogger) Error(format string, args ...any) { m.write(format, args...) }
func (m *mockTestLogger) IsDebugEnabled() bool             { return true }
func (m *mockTestLogger) IsVerboseEnabled() bool           { return true }

type reply struct {
	stdout string
	stderr string
	code   int
}

// fakeLab answers commands per host with canned replies. Unknown commands exit 127.
type fakeLab struct {
	mu      sync.Mutex
	replies map[string]map[string]reply
	calls   []string
}

func newFakeLab() *fakeLab {
	return &fakeLab{replies: make(map[string]map[string]reply)}
}

func (l *fakeLab) on(host, cmd string, r reply) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.replies[host] == nil {
		l.replies[host] = make(map[string]reply)
	}
	l.replies[host][cmd] = r
}

func (l *fakeLab) dial(_ context.Context, cred underlay.SSHCredential) (underlay.Session, error) {
	return &fakeSession{lab: l, host: cred.Host}, nil
}

type fakeSession struct {
	lab  *fakeLab
	host string
}

func (s *fakeSession) Run(ctx context.Context, cmd string, _ io.Reader, stdout, stderr io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	s.lab.mu.Lock()
	s.lab.calls = append(s.lab.calls, s.host+": "+cmd)
	r, ok := s.lab.replies[s.host][cmd]
	s.lab.mu.Unlock()
	if !ok {
		_, _ = fmt.Fprintf(stderr, "%s: command not found\n", cmd)
		return 127, nil
	}
	_, _ = io.WriteString(stdout, r.stdout)
	_, _ = io.WriteString(stderr, r.stderr)
	return r.code, nil
}

func (s *fakeSession) Close() error { return nil }

const testEnvConfig = `underlay:
  ssh:
  - node_name: master
    host: 10.0.0.2
    roles: [k8s-master]
  - node_name: slave-0
    host: 10.0.0.3
    roles: [k8s-node]
`

// newTestServices builds services for a two node lab without Kubernetes.
func newTestServices(t *testing.T, lab *fakeLab, mutate func(*config.Settings)) *app.Services {
	t.Helper()
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.yaml")
	require.NoError(t, os.WriteFile(envPath, []byte(testEnvConfig), 0o644))

	ec, err := config.LoadEnvironmentConfig(envPath)
	require.NoError(t, err)

	settings := config.DefaultSettings()
	settings.EnvName = "lab-1"
	settings.LogsDir = dir
	settings.EnvConfigPath = envPath
	settings.SnapshotsEnabled = false
	if mutate != nil {
		mutate(&settings)
	}

	s, err := app.InitializeServices(settings, ec, app.WithDialer(lab.dial))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeScenarioFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

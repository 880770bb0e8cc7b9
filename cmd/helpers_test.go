package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"ccptests/internal/app"
	"ccptests/internal/underlay"
)

type reply struct {
	stdout string
	code   int
}

// fakeLab answers remote commands per host. Unknown commands exit 127.
type fakeLab struct {
	mu      sync.Mutex
	replies map[string]map[string]reply
}

func newFakeLab() *fakeLab {
	return &fakeLab{replies: make(map[string]map[string]reply)}
}

func (l *fakeLab) on(host, cmd string, r reply) *fakeLab {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.replies[host] == nil {
		l.replies[host] = make(map[string]reply)
	}
	l.replies[host][cmd] = r
	return l
}

func (l *fakeLab) dial(_ context.Context, cred underlay.SSHCredential) (underlay.Session, error) {
	return &fakeSession{lab: l, host: cred.Host}, nil
}

type fakeSession struct {
	lab  *fakeLab
	host string
}

func (s *fakeSession) Run(_ context.Context, cmd string, _ io.Reader, stdout, stderr io.Writer) (int, error) {
	s.lab.mu.Lock()
	r, ok := s.lab.replies[s.host][cmd]
	s.lab.mu.Unlock()
	if !ok {
		_, _ = fmt.Fprintf(stderr, "%s: command not found\n", cmd)
		return 127, nil
	}
	_, _ = io.WriteString(stdout, r.stdout)
	return r.code, nil
}

func (s *fakeSession) Close() error { return nil }

// fakeDevops stands in for dos.py.
type fakeDevops struct {
	mu        sync.Mutex
	calls     []string
	snapshots []string
}

func (f *fakeDevops) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch args[0] {
	case "snapshot-list":
		out := "SNAPSHOT CREATED DESCRIPTION\n-------- ------- -----------\n"
		for _, s := range f.snapshots {
			out += s + " 2017-01-12 stage\n"
		}
		return []byte(out), nil
	case "snapshot":
		f.snapshots = append(f.snapshots, args[3])
	}
	return nil, nil
}

const labEnvConfig = `underlay:
  ssh:
  - node_name: master
    host: 10.0.0.2
    roles: [k8s-master]
  - node_name: slave-0
    host: 10.0.0.3
    roles: [k8s-node]
`

// testLab is a settings file and environment configuration in a temporary directory.
type testLab struct {
	dir      string
	settings string
	envPath  string
	lab      *fakeLab
	devops   *fakeDevops
}

func newTestLab(t *testing.T, envConfig string) *testLab {
	t.Helper()
	t.Setenv("KUBECONFIG", "")
	dir := t.TempDir()
	l := &testLab{
		dir:     dir,
		envPath: filepath.Join(dir, "env.yaml"),
		lab:     newFakeLab(),
		devops:  &fakeDevops{},
	}
	if envConfig != "" {
		require.NoError(t, os.WriteFile(l.envPath, []byte(envConfig), 0o644))
	}
	l.settings = filepath.Join(dir, "ccptest.yaml")
	settings := fmt.Sprintf("envName: lab-1\nlogsDir: %s\nenvConfigPath: %s\nsnapshotsEnabled: true\n", filepath.Join(dir, "logs"), l.envPath)
	require.NoError(t, os.WriteFile(l.settings, []byte(settings), 0o644))
	return l
}

// run executes the CLI against the lab and returns stdout and stderr.
func (l *testLab) run(args ...string) (string, string, error) {
	g := &globalOptions{appOptions: []app.Option{
		app.WithDialer(l.lab.dial),
		app.WithCommandRunner(l.devops.run),
	}}
	return runCLI(g, append([]string{"--settings", l.settings}, args...)...)
}

func runCLI(g *globalOptions, args ...string) (string, string, error) {
	return runCLIWith(newRootCmd(g), args...)
}

func runCLIWith(root *cobra.Command, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

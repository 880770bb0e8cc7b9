package testing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	crfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"ccptests/internal/app"
	"ccptests/internal/config"
	"ccptests/internal/kube"
	"ccptests/internal/underlay"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{
		"ssh.exec", "ssh.exec_all", "kube.wait_pod_phase", "kube.wait_job", "kube.apply",
		"config.set", "config.get", "ccp.run", "snapshot.revert", "stacklight.log_count",
		"stacklight.influx_query", "stacklight.grafana_dashboard", "health.rabbitmq",
		"health.galera", "health.etcd", "sleep",
	} {
		assert.True(t, r.Has(name), name)
	}
	assert.False(t, r.Has("ssh.scp"))
	assert.IsIncreasing(t, r.Names())
}

func TestSSHExec(t *testing.T) {
	lab := newFakeLab()
	lab.on("10.0.0.3", "hostname", reply{stdout: "slave-0\n"})
	lab.on("10.0.0.3", "systemctl is-active docker", reply{stdout: "inactive\n", code: 3})
	env := newTestServices(t, lab, nil)
	ctx := context.Background()

	resp, err := sshExec(ctx, env, Args{"node": "slave-0", "command": "hostname"})
	require.NoError(t, err)
	m := resp.(map[string]any)
	assert.Equal(t, "slave-0", m["stdout"])
	assert.Equal(t, 0, m["exit_code"])
	assert.Equal(t, []any{"slave-0"}, m["stdout_lines"])

	resp, err = sshExec(ctx, env, Args{"node": "slave-0", "command": "systemctl is-active docker"})
	var execErr *underlay.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, resp.(map[string]any)["exit_code"])

	_, err = sshExec(ctx, env, Args{"node": "slave-0", "command": "systemctl is-active docker", "expected_codes": []any{0, 3}})
	require.NoError(t, err)

	_, err = sshExec(ctx, env, Args{"command": "hostname"})
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "node", argErr.Key)

	_, err = sshExec(ctx, env, Args{"node": "slave-9", "command": "hostname"})
	assert.ErrorIs(t, err, underlay.ErrUnknownNode)
}

func TestSSHExec_Sudo(t *testing.T) {
	lab := newFakeLab()
	lab.on("10.0.0.2", "sudo -n whoami", reply{stdout: "root\n"})
	env := newTestServices(t, lab, nil)

	resp, err := sshExec(context.Background(), env, Args{"node": "master", "command": "whoami", "sudo": true})
	require.NoError(t, err)
	assert.Equal(t, "root", resp.(map[string]any)["stdout"])
}

func TestSSHExecAll(t *testing.T) {
	lab := newFakeLab()
	lab.on("10.0.0.2", "uptime", reply{stdout: "up 1 day\n"})
	env := newTestServices(t, lab, nil)
	ctx := context.Background()

	resp, err := sshExecAll(ctx, env, Args{"command": "uptime"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slave-0 (exit 127)")
	nodes := resp.(map[string]any)["nodes"].(map[string]any)
	assert.Len(t, nodes, 2)
	assert.Equal(t, "up 1 day", nodes["master"].(map[string]any)["stdout"])

	_, err = sshExecAll(ctx, env, Args{"command": "uptime", "allow_failure": true})
	require.NoError(t, err)
}

func TestConfigSetGet_File(t *testing.T) {
	env := newTestServices(t, newFakeLab(), nil)
	path := writeScenarioFile(t, t.TempDir(), "ccp.yaml", "images:\n  tag: latest\n")
	ctx := context.Background()

	_, err := configSet(ctx, env, Args{"file": path, "path": "images.tag", "value": "ocata", "create": false})
	require.NoError(t, err)

	resp, err := configGet(ctx, env, Args{"file": path, "path": "images.tag"})
	require.NoError(t, err)
	assert.Equal(t, "ocata", resp.(map[string]any)["value"])

	_, err = configSet(ctx, env, Args{"file": path, "path": "images.namespace", "value": "mcp", "create": false})
	require.Error(t, err)

	_, err = configSet(ctx, env, Args{"file": path, "path": "images.tag"})
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "value", argErr.Key)
}

func TestConfigSet_Shape(t *testing.T) {
	env := newTestServices(t, newFakeLab(), nil)
	path := writeScenarioFile(t, t.TempDir(), "ccp.yaml", "images:\n  tag: latest\n")
	ctx := context.Background()

	resp, err := configSet(ctx, env, Args{"file": path, "path": "nodes", "shape": []any{1}})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, map[string]any{}}, resp.(map[string]any)["value"])

	_, err = configSet(ctx, env, Args{"file": path, "path": "nodes[1].name", "value": "slave-0"})
	require.NoError(t, err)
	got, err := config.GetFromFile(path, "nodes[-1].name")
	require.NoError(t, err)
	assert.Equal(t, "slave-0", got)

	var argErr *ArgError
	_, err = configSet(ctx, env, Args{"file": path, "path": "roles", "shape": "first"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "shape", argErr.Key)

	_, err = configSet(ctx, env, Args{"file": path, "path": "roles", "shape": []any{0}, "value": "x"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "shape", argErr.Key)
}

func TestConfigSet_EnvironmentConfig(t *testing.T) {
	env := newTestServices(t, newFakeLab(), nil)
	ctx := context.Background()

	_, err := configSet(ctx, env, Args{"path": "k8s.kube_host", "value": "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", env.EnvConfig.KubeHost())

	reloaded, err := config.LoadEnvironmentConfig(env.EnvConfig.Path())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", reloaded.KubeHost())

	resp, err := configGet(ctx, env, Args{"path": "underlay.ssh[-1].node_name"})
	require.NoError(t, err)
	assert.Equal(t, "slave-0", resp.(map[string]any)["value"])
}

func TestKubeActions(t *testing.T) {
	env := newTestServices(t, newFakeLab(), nil)
	_, err := kubeWaitJob(context.Background(), env, Args{"name": "db-sync"})
	assert.ErrorIs(t, err, app.ErrNoKubernetes)

	running := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "keystone-0", Namespace: "ccp", Labels: map[string]string{"app": "keystone"}},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	cs := fake.NewClientset(running)
	crc := crfake.NewClientBuilder().WithScheme(kube.NewScheme()).Build()
	env.Kube = kube.NewClusterForClients(cs, crc, kube.WithPollInterval(10*time.Millisecond))

	resp, err := kubeWaitPodPhase(context.Background(), env, Args{"namespace": "ccp", "selector": "app=keystone", "timeout": "1s"})
	require.NoError(t, err)
	assert.Equal(t, []any{"keystone-0"}, resp.(map[string]any)["pods"])

	_, err = kubeWaitPodPhase(context.Background(), env, Args{"namespace": "ccp", "name": "keystone-0", "phase": "Succeeded", "timeout": "50ms"})
	require.Error(t, err)

	manifest := "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: keystone-config\ndata:\n  a: b\n"
	resp, err = kubeApply(context.Background(), env, Args{"namespace": "ccp", "manifest": manifest})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.(map[string]any)["count"])
	assert.Equal(t, []any{"ConfigMap/ccp/keystone-config"}, resp.(map[string]any)["objects"])

	path := writeScenarioFile(t, t.TempDir(), "cm.yaml", strings.Replace(manifest, "keystone-config", "glance-config", 1))
	resp, err = kubeApply(context.Background(), env, Args{"namespace": "ccp", "file": path, "manifest": manifest})
	require.NoError(t, err)
	assert.Equal(t, []any{"ConfigMap/ccp/glance-config"}, resp.(map[string]any)["objects"])

	_, err = kubeApply(context.Background(), env, Args{"namespace": "ccp", "file": []any{path}, "manifest": manifest})
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "file", argErr.Key)
}

func TestStacklightLogCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/log-*/_count", r.URL.Path)
		_, _ = w.Write([]byte(`{"count": 7}`))
	}))
	defer srv.Close()

	env := newTestServices(t, newFakeLab(), func(s *config.Settings) {
		s.Stacklight.ElasticsearchURL = srv.URL
	})

	resp, err := stacklightLogCount(context.Background(), env, Args{"index": "log-*", "query": "severity_label:ERROR"})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.(map[string]any)["count"])
}

func TestStacklightGrafanaDashboard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title": "Main"}, {"title": "Kubernetes"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newTestServices(t, newFakeLab(), func(s *config.Settings) {
		s.Stacklight.GrafanaURL = srv.URL
	})

	resp, err := stacklightGrafanaDashboard(context.Background(), env, Args{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.(map[string]any)["count"])
}

func TestSleepAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sleepAction(ctx, nil, Args{"duration": "1h"})
	assert.True(t, errors.Is(err, context.Canceled))

	resp, err := sleepAction(context.Background(), nil, Args{"duration": "1ms"})
	require.NoError(t, err)
	assert.Equal(t, "1ms", resp.(map[string]any)["slept"])
}

func TestConfigGet_MissingFile(t *testing.T) {
	env := newTestServices(t, newFakeLab(), nil)
	_, err := configGet(context.Background(), env, Args{"file": filepath.Join(t.TempDir(), "nope.yaml"), "path": "a"})
	require.Error(t, err)
}

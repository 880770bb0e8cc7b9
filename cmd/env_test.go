package cmd

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccptests/internal/config"
	"ccptests/internal/snapshot"
	"ccptests/internal/underlay"
)

func TestParseNode(t *testing.T) {
	cred, err := parseNode("master=10.0.0.2:2222,k8s-master, etcd")
	require.NoError(t, err)
	assert.Equal(t, underlay.SSHCredential{
		Node:  "master",
		Host:  "10.0.0.2",
		Port:  2222,
		Roles: []string{"k8s-master", "etcd"},
	}, cred)

	cred, err = parseNode("slave-0=10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", cred.Host)
	assert.Zero(t, cred.Port)
	assert.Empty(t, cred.Roles)

	for _, bad := range []string{"master", "=10.0.0.2", "master=", "master=10.0.0.2:ssh", "master=10.0.0.2:0"} {
		_, err := parseNode(bad)
		assert.Error(t, err, bad)
	}
}

func TestEnvInitAndShow(t *testing.T) {
	l := newTestLab(t, "")

	out, _, err := l.run("env", "init",
		"--node", "master=10.0.0.2:2222,k8s-master",
		"--node", "slave-0=10.0.0.3,k8s-node",
		"--login", "vagrant",
		"--kube-host", "10.0.0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment lab-1: 2 nodes written to "+l.envPath)

	ec, err := config.LoadEnvironmentConfig(l.envPath)
	require.NoError(t, err)
	creds, err := ec.Underlay()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "vagrant", creds[0].Login)
	assert.Equal(t, "10.0.0.2", ec.KubeHost())

	out, _, err = l.run("env", "show")
	require.NoError(t, err)
	for _, want := range []string{"lab-1", "10.0.0.2:2222", "10.0.0.3:22", "k8s-master", "vagrant", "enabled"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "STATUS")
	assert.Less(t, strings.Index(out, "master"), strings.Index(out, "slave-0"))
}

func TestEnvInit_RefusesToReplaceNodes(t *testing.T) {
	l := newTestLab(t, labEnvConfig)

	_, _, err := l.run("env", "init", "--node", "other=10.0.0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already lists 2 nodes")

	_, _, err = l.run("env", "init", "--force", "--node", "other=10.0.0.9")
	require.NoError(t, err)

	ec, err := config.LoadEnvironmentConfig(l.envPath)
	require.NoError(t, err)
	creds, err := ec.Underlay()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "other", creds[0].Node)
}

func TestEnvInit_RequiresNodes(t *testing.T) {
	l := newTestLab(t, "")

	_, _, err := l.run("env", "init")
	assert.Error(t, err)
}

func TestEnvShow_Empty(t *testing.T) {
	l := newTestLab(t, "")

	out, _, err := l.run("env", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No underlay nodes recorded")
}

func TestEnvShow_Check(t *testing.T) {
	l := newTestLab(t, labEnvConfig)
	l.lab.on("10.0.0.2", "true", reply{})

	out, _, err := l.run("env", "show", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "exit 127")
}

func TestEnvSnapshots(t *testing.T) {
	l := newTestLab(t, labEnvConfig)
	l.devops.snapshots = []string{"empty"}

	out, _, err := l.run("env", "snapshot", "k8s-deployed")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot k8s-deployed created")
	assert.Contains(t, l.devops.calls, "dos.py snapshot lab-1 --snapshot-name k8s-deployed --description ccptest stage k8s-deployed")

	ec, err := config.LoadEnvironmentConfig(l.envPath)
	require.NoError(t, err)
	assert.True(t, ec.HasSnapshot("k8s-deployed"))

	out, _, err = l.run("env", "snapshots")
	require.NoError(t, err)
	assert.Equal(t, "  empty\n* k8s-deployed\n", out)
}

func TestEnvRevert(t *testing.T) {
	l := newTestLab(t, labEnvConfig)
	l.devops.snapshots = []string{"k8s-deployed"}

	out, _, err := l.run("env", "revert", "k8s-deployed")
	require.NoError(t, err)
	assert.Contains(t, out, "Reverted to snapshot k8s-deployed")
	assert.Contains(t, l.devops.calls, "dos.py revert lab-1 --snapshot-name k8s-deployed")
	assert.Contains(t, l.devops.calls, "dos.py resume lab-1")

	_, _, err = l.run("env", "revert", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	data, err := os.ReadFile(l.envPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "missing")
}

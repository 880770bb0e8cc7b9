package underlay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_Address(t *testing.T) {
	creds := testCredentials()
	assert.Equal(t, "10.0.0.2:22", creds[0].Address())
	assert.Equal(t, "10.0.0.4:2222", creds[2].Address())
	assert.Equal(t, "[fd00::1]:22", SSHCredential{Host: "fd00::1"}.Address())
}

func TestManager_Lookup(t *testing.T) {
	m := NewManager(testCredentials(), WithDialer(newFakeNetwork().dial))

	assert.Equal(t, []string{"master", "slave-0", "slave-1"}, m.Nodes())
	assert.Equal(t, []string{"slave-0", "slave-1"}, m.NodesByRole("k8s-node"))
	assert.Empty(t, m.NodesByRole("compute"))

	host, err := m.HostByNode("slave-0")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", host)

	_, err = m.HostByNode("slave-9")
	assert.ErrorIs(t, err, ErrUnknownNode)

	cred, err := m.Credential("10.0.0.4")
	require.NoError(t, err)
	assert.Equal(t, "slave-1", cred.Node)
}

func TestManager_AddReplacesNode(t *testing.T) {
	m := NewManager(testCredentials())
	m.Add(SSHCredential{Node: "master", Host: "10.0.1.2", Login: "root"})
	m.Add(SSHCredential{Node: "slave-2", Host: "10.0.0.5", Login: "root"})

	assert.Equal(t, []string{"master", "slave-0", "slave-1", "slave-2"}, m.Nodes())
	host, err := m.HostByNode("master")
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.2", host)
}

func TestManager_RemoteIsCachedAndDeduplicated(t *testing.T) {
	net := newFakeNetwork()
	m := NewManager(testCredentials(), WithDialer(net.dial))

	var wg sync.WaitGroup
	sessions := make([]Session, 10)
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Remote(context.Background(), "master")
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), net.dials.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}

	// Addressing by host reuses the same session.
	s, err := m.Remote(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.Same(t, sessions[0], s)
	assert.Equal(t, int32(1), net.dials.Load())
}

func TestManager_RemoteDialFailure(t *testing.T) {
	net := newFakeNetwork()
	net.fail["10.0.0.3"] = true
	m := NewManager(testCredentials(), WithDialer(net.dial), WithDialAttempts(1))

	_, err := m.Remote(context.Background(), "slave-0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slave-0")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestManager_Close(t *testing.T) {
	net := newFakeNetwork()
	m := NewManager(testCredentials(), WithDialer(net.dial))

	_, err := m.Remote(context.Background(), "master")
	require.NoError(t, err)
	_, err = m.Remote(context.Background(), "slave-0")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	for _, s := range net.sessions {
		assert.True(t, s.closed.Load())
	}

	// A closed manager dials again on next use.
	_, err = m.Remote(context.Background(), "master")
	require.NoError(t, err)
	assert.Equal(t, int32(3), net.dials.Load())
}

func TestManager_UnknownNode(t *testing.T) {
	m := NewManager(nil, WithDialer(newFakeNetwork().dial))
	_, err := m.Execute(context.Background(), "master", "true")
	assert.True(t, errors.Is(err, ErrUnknownNode))
}

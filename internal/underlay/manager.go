package underlay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"ccptests/pkg/logging"
)

const (
	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 30 * time.Second
	// DefaultDialAttempts is how many times a node is dialed before giving up.
	DefaultDialAttempts = 3
)

// ErrUnknownNode is returned when a node name or host is not registered.
var ErrUnknownNode = errors.New("unknown underlay node")

// Manager holds the node credentials and the cached sessions to them.
type Manager struct {
	mu       sync.RWMutex
	creds    []SSHCredential
	sessions map[string]Session

	group        singleflight.Group
	dialer       Dialer
	dialAttempts uint
	parallelism  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the SSH dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithDialAttempts sets how many times a dial is attempted. Values below 1 are ignored.
func WithDialAttempts(n uint) Option {
	return func(m *Manager) {
		if n > 0 {
			m.dialAttempts = n
		}
	}
}

// WithParallelism limits how many nodes ExecuteOnAll talks to at once.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		m.parallelism = n
	}
}

// NewManager creates a Manager for the given credentials.
func NewManager(creds []SSHCredential, opts ...Option) *Manager {
	m := &Manager{
		sessions:     make(map[string]Session),
		dialer:       SSHDialer(DefaultDialTimeout),
		dialAttempts: DefaultDialAttempts,
	}
	for _, c := range creds {
		m.Add(c)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a credential. A credential for an already known node replaces it.
func (m *Manager) Add(cred SSHCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.creds {
		if existing.Node == cred.Node && cred.Node != "" {
			m.creds[i] = cred
			return
		}
	}
	m.creds = append(m.creds, cred)
}

// Nodes returns the registered node names in registration order.
func (m *Manager) Nodes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := make([]string, 0, len(m.creds))
	for _, c := range m.creds {
		nodes = append(nodes, c.Node)
	}
	return nodes
}

// NodesByRole returns the names of the nodes carrying role.
func (m *Manager) NodesByRole(role string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []string
	for _, c := range m.creds {
		if c.HasRole(role) {
			nodes = append(nodes, c.Node)
		}
	}
	return nodes
}

// Credentials returns a copy of all registered credentials.
func (m *Manager) Credentials() []SSHCredential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.creds)
}

// HostByNode returns the host address of the named node.
func (m *Manager) HostByNode(node string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.creds {
		if c.Node == node {
			return c.Host, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownNode, node)
}

// Credential looks a node up by node name first, then by host.
func (m *Manager) Credential(nodeOrHost string) (SSHCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.creds {
		if c.Node == nodeOrHost {
			return c, nil
		}
	}
	for _, c := range m.creds {
		if c.Host == nodeOrHost {
			return c, nil
		}
	}
	return SSHCredential{}, fmt.Errorf("%w: %s", ErrUnknownNode, nodeOrHost)
}

// Remote returns the cached session for the node, dialing it on first use.
func (m *Manager) Remote(ctx context.Context, nodeOrHost string) (Session, error) {
	cred, err := m.Credential(nodeOrHost)
	if err != nil {
		return nil, err
	}
	key := cred.Address()

	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.RLock()
		s, ok := m.sessions[key]
		m.mu.RUnlock()
		if ok {
			return s, nil
		}

		logging.Debug("Underlay", "Connecting to %s (%s) as %s", cred.Node, key, cred.Login)
		s, err := backoff.Retry(ctx, func() (Session, error) {
			return m.dialer(ctx, cred)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(m.dialAttempts))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s (%s): %w", cred.Node, key, err)
		}

		m.mu.Lock()
		m.sessions[key] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

// forget drops a broken cached session so that the next call reconnects.
func (m *Manager) forget(cred SSHCredential, s Session) {
	key := cred.Address()

	m.mu.Lock()
	current, ok := m.sessions[key]
	if ok && current == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok && current == s {
		_ = s.Close()
	}
}

// Close closes all cached sessions.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]Session)
	m.mu.Unlock()

	var errs error
	for key, s := range sessions {
		if err := s.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", key, err))
		}
	}
	return errs
}

package underlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

type fakeReply struct {
	stdout string
	stderr string
	code   int
	err    error
}

type fakeSession struct {
	host    string
	replies map[string]fakeReply
	mu      sync.Mutex
	calls   []string
	stdin   []string
	closed  atomic.Bool
}

func (s *fakeSession) Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		s.stdin = append(s.stdin, string(data))
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return -1, err
	}
	reply, ok := s.replies[cmd]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "%s: command not found\n", cmd)
		return 127, nil
	}
	if reply.err != nil {
		return -1, reply.err
	}
	_, _ = io.WriteString(stdout, reply.stdout)
	_, _ = io.WriteString(stderr, reply.stderr)
	return reply.code, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeNetwork struct {
	mu       sync.Mutex
	replies  map[string]map[string]fakeReply
	sessions []*fakeSession
	dials    atomic.Int32
	fail     map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		replies: make(map[string]map[string]fakeReply),
		fail:    make(map[string]bool),
	}
}

func (n *fakeNetwork) reply(host, cmd string, r fakeReply) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.replies[host] == nil {
		n.replies[host] = make(map[string]fakeReply)
	}
	n.replies[host][cmd] = r
}

func (n *fakeNetwork) dial(_ context.Context, cred SSHCredential) (Session, error) {
	n.dials.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[cred.Host] {
		return nil, errors.New("connection refused")
	}
	s := &fakeSession{host: cred.Host, replies: n.replies[cred.Host]}
	n.sessions = append(n.sessions, s)
	return s, nil
}

func testCredentials() []SSHCredential {
	return []SSHCredential{
		{Node: "master", Host: "10.0.0.2", Login: "vagrant", Password: "vagrant", Roles: []string{"k8s-master", "ccp"}},
		{Node: "slave-0", Host: "10.0.0.3", Login: "vagrant", Password: "vagrant", Roles: []string{"k8s-node"}},
		{Node: "slave-1", Host: "10.0.0.4", Port: 2222, Login: "vagrant", Password: "vagrant", Roles: []string{"k8s-node"}},
	}
}

package underlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is an open connection to one node able to run commands.
type Session interface {
	// Run executes cmd and returns its exit status. A non-nil error means the command
	// could not be run or its status is unknown.
	Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
	Close() error
}

// Dialer opens a Session for a credential.
type Dialer func(ctx context.Context, cred SSHCredential) (Session, error)

// SSHDialer returns a Dialer backed by golang.org/x/crypto/ssh. Password and key file
// authentication are both offered when configured.
func SSHDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, cred SSHCredential) (Session, error) {
		auth, err := authMethods(cred)
		if err != nil {
			return nil, err
		}

		config := &ssh.ClientConfig{
			User: cred.Login,
			Auth: auth,
			// Lab nodes are recreated from snapshots and their host keys change.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         timeout,
		}

		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", cred.Address())
		if err != nil {
			return nil, err
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, cred.Address(), config)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &sshSession{client: ssh.NewClient(c, chans, reqs)}, nil
	}
}

func authMethods(cred SSHCredential) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cred.KeyFile != "" {
		key, err := os.ReadFile(cred.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", cred.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file %s: %w", cred.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cred.Password != "" {
		methods = append(methods, ssh.Password(cred.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no password or key file configured for %s@%s", cred.Login, cred.Host)
	}
	return methods, nil
}

type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) Run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(cmd); err != nil {
		return -1, err
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return -1, ctx.Err()
	case err := <-done:
		return exitCode(err)
	}
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, err
}

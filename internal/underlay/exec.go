package underlay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"al.essio.dev/pkg/shellescape"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"ccptests/pkg/logging"
	pkgstrings "ccptests/pkg/strings"
)

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	Node     string   `json:"node"`
	Command  string   `json:"command"`
	ExitCode int      `json:"exit_code"`
	Stdout   []string `json:"stdout"`
	Stderr   []string `json:"stderr"`
}

// StdoutString joins the stdout lines.
func (r *ExecResult) StdoutString() string {
	return strings.Join(r.Stdout, "\n")
}

// StderrString joins the stderr lines.
func (r *ExecResult) StderrString() string {
	return strings.Join(r.Stderr, "\n")
}

// StdoutYAML decodes stdout as YAML into v.
func (r *ExecResult) StdoutYAML(v any) error {
	if err := yaml.Unmarshal([]byte(r.StdoutString()), v); err != nil {
		return fmt.Errorf("stdout of %q on %s is not valid YAML: %w", r.Command, r.Node, err)
	}
	return nil
}

// StdoutJSON decodes stdout as JSON into v.
func (r *ExecResult) StdoutJSON(v any) error {
	if err := json.Unmarshal([]byte(r.StdoutString()), v); err != nil {
		return fmt.Errorf("stdout of %q on %s is not valid JSON: %w", r.Command, r.Node, err)
	}
	return nil
}

// ExecError reports a command that finished with an unexpected exit code.
type ExecError struct {
	Result   *ExecResult
	Expected []int
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %q on %s exited with code %d, expected %v",
		e.Result.Command, e.Result.Node, e.Result.ExitCode, e.Expected)
	if len(e.Result.Stderr) > 0 {
		msg += ": " + pkgstrings.OneLine(e.Result.StderrString(), 200)
	}
	return msg
}

// Execute runs cmd on the node and collects its output. A non-zero exit code is not an
// error; use CheckCall for that.
func (m *Manager) Execute(ctx context.Context, node, cmd string) (*ExecResult, error) {
	return m.execute(ctx, node, cmd, nil)
}

func (m *Manager) execute(ctx context.Context, node, cmd string, stdin io.Reader) (*ExecResult, error) {
	cred, err := m.Credential(node)
	if err != nil {
		return nil, err
	}
	s, err := m.Remote(ctx, node)
	if err != nil {
		return nil, err
	}

	logging.Debug("Underlay", "Executing on %s: %s", cred.Node, cmd)

	var stdout, stderr bytes.Buffer
	code, err := s.Run(ctx, cmd, stdin, &stdout, &stderr)
	if err != nil {
		if ctx.Err() == nil {
			m.forget(cred, s)
		}
		return nil, fmt.Errorf("failed to run %q on %s: %w", cmd, cred.Node, err)
	}

	res := &ExecResult{
		Node:     cred.Node,
		Command:  cmd,
		ExitCode: code,
		Stdout:   pkgstrings.SplitLines(stdout.String()),
		Stderr:   pkgstrings.SplitLines(stderr.String()),
	}
	logging.Debug("Underlay", "Command on %s exited with %d (%d stdout lines, %d stderr lines)",
		cred.Node, code, len(res.Stdout), len(res.Stderr))
	return res, nil
}

// CheckCall runs cmd and fails with an *ExecError unless the exit code is one of expected
// (0 when none are given).
func (m *Manager) CheckCall(ctx context.Context, node, cmd string, expected ...int) (*ExecResult, error) {
	return m.checkCall(ctx, node, cmd, nil, expected)
}

// SudoCheckCall is CheckCall with the command run through non-interactive sudo.
func (m *Manager) SudoCheckCall(ctx context.Context, node, cmd string, expected ...int) (*ExecResult, error) {
	return m.checkCall(ctx, node, "sudo -n "+cmd, nil, expected)
}

func (m *Manager) checkCall(ctx context.Context, node, cmd string, stdin io.Reader, expected []int) (*ExecResult, error) {
	if len(expected) == 0 {
		expected = []int{0}
	}
	res, err := m.execute(ctx, node, cmd, stdin)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(expected, res.ExitCode) {
		err := &ExecError{Result: res, Expected: expected}
		logging.Error("Underlay", err, "Unexpected exit code on %s", res.Node)
		return res, err
	}
	return res, nil
}

// ExecuteOnAll runs cmd on every registered node concurrently. Results are keyed by node
// name; the error combines the failures of all nodes.
func (m *Manager) ExecuteOnAll(ctx context.Context, cmd string) (map[string]*ExecResult, error) {
	nodes := m.Nodes()
	results := make(map[string]*ExecResult, len(nodes))

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	if m.parallelism > 0 {
		g.SetLimit(m.parallelism)
	}
	for _, node := range nodes {
		g.Go(func() error {
			res, err := m.Execute(gctx, node, cmd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			results[node] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// Upload writes content to remotePath on the node and sets its mode.
func (m *Manager) Upload(ctx context.Context, node, remotePath string, content []byte, mode os.FileMode) error {
	quoted := shellescape.Quote(remotePath)
	cmd := fmt.Sprintf("cat > %s && chmod %o %s", quoted, mode.Perm(), quoted)
	if _, err := m.checkCall(ctx, node, cmd, bytes.NewReader(content), nil); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", remotePath, node, err)
	}
	logging.Info("Underlay", "Uploaded %d bytes to %s:%s", len(content), node, remotePath)
	return nil
}

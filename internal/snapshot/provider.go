// Package snapshot implements the snapshot/revert lifecycle of lab environments.
//
// Building an environment from scratch is slow, so each expensive stage (underlay
// provisioned, Kubernetes deployed, ccp deployed) is snapshotted once and later runs
// revert to it instead of rebuilding.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"

	"ccptests/pkg/logging"
)

// Well-known snapshot names.
const (
	Underlay    = "underlay"
	K8sDeployed = "k8s_deployed"
	CCPDeployed = "ccp_deployed"
)

// Provider manipulates snapshots of one environment.
type Provider interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, description string) error
	Revert(ctx context.Context, name string) error
	Resume(ctx context.Context) error
	List(ctx context.Context) ([]string, error)
}

// CommandRunner runs a local command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. Diagnostics on stderr are also logged as they
// arrive, since reverts can take minutes.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	progress := logging.LineWriter(logging.LevelDebug, "Snapshot", name+": ")
	defer progress.Close()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.MultiWriter(&out, progress)
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// DevopsProvider drives the devops environment CLI (dos.py).
type DevopsProvider struct {
	command string
	env     string
	run     CommandRunner
}

// NewDevopsProvider returns a provider for environment env using command. A nil runner
// means ExecRunner.
func NewDevopsProvider(command, env string, run CommandRunner) *DevopsProvider {
	if run == nil {
		run = ExecRunner
	}
	return &DevopsProvider{command: command, env: env, run: run}
}

func (p *DevopsProvider) exec(ctx context.Context, args ...string) ([]byte, error) {
	logging.Debug("Snapshot", "Running %s %s", p.command, strings.Join(args, " "))
	return p.run(ctx, p.command, args...)
}

// List returns the snapshot names of the environment.
//
// dos.py prints a header, a dashed separator and one snapshot per line with the name in
// the first column.
func (p *DevopsProvider) List(ctx context.Context) ([]string, error) {
	out, err := p.exec(ctx, "snapshot-list", p.env)
	if err != nil {
		return nil, err
	}
	return parseSnapshotList(string(out)), nil
}

func parseSnapshotList(out string) []string {
	var names []string
	body := false
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Trim(trimmed, "-+ ") == "" {
			body = true
			continue
		}
		if !body {
			continue
		}
		names = append(names, strings.Fields(trimmed)[0])
	}
	return names
}

// Exists reports whether the snapshot exists.
func (p *DevopsProvider) Exists(ctx context.Context, name string) (bool, error) {
	names, err := p.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// Create snapshots the environment.
func (p *DevopsProvider) Create(ctx context.Context, name, description string) error {
	args := []string{"snapshot", p.env, "--snapshot-name", name}
	if description != "" {
		args = append(args, "--description", description)
	}
	_, err := p.exec(ctx, args...)
	return err
}

// Revert restores the environment to the snapshot.
func (p *DevopsProvider) Revert(ctx context.Context, name string) error {
	_, err := p.exec(ctx, "revert", p.env, "--snapshot-name", name)
	return err
}

// Resume starts the environment after a revert.
func (p *DevopsProvider) Resume(ctx context.Context) error {
	_, err := p.exec(ctx, "resume", p.env)
	return err
}

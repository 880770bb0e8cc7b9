// Package ccp drives the ccp deployment tool on the lab master node.
package ccp

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"ccptests/internal/underlay"
	"ccptests/pkg/logging"
)

// Remote runs commands on underlay nodes. *underlay.Manager implements it.
type Remote interface {
	CheckCall(ctx context.Context, node, cmd string, expected ...int) (*underlay.ExecResult, error)
	SudoCheckCall(ctx context.Context, node, cmd string, expected ...int) (*underlay.ExecResult, error)
	Upload(ctx context.Context, node, remotePath string, content []byte, mode os.FileMode) error
}

// ConfigFileName is the name of the uploaded configuration inside the remote directory.
const ConfigFileName = "ccp.yaml"

// Manager runs ccp commands on one node with a managed configuration file.
type Manager struct {
	remote    Remote
	node      string
	remoteDir string
	source    string
	config    *Config
}

// NewManager creates a Manager running ccp on node with cfg uploaded to remoteDir.
// source is what InstallRequirements installs ccp from.
func NewManager(remote Remote, node, remoteDir, source string, cfg *Config) *Manager {
	return &Manager{
		remote:    remote,
		node:      node,
		remoteDir: remoteDir,
		source:    source,
		config:    cfg,
	}
}

// Config returns the configuration uploaded by PutConfig.
func (m *Manager) Config() *Config {
	return m.config
}

// ConfigPath is where the configuration lives on the node.
func (m *Manager) ConfigPath() string {
	return path.Join(m.remoteDir, ConfigFileName)
}

// PutConfig uploads the current configuration to the node.
func (m *Manager) PutConfig(ctx context.Context) error {
	data, err := m.config.YAML()
	if err != nil {
		return err
	}
	if _, err := m.remote.CheckCall(ctx, m.node, "mkdir -p "+shellescape.Quote(m.remoteDir)); err != nil {
		return err
	}
	return m.remote.Upload(ctx, m.node, m.ConfigPath(), data, 0o600)
}

// Run invokes ccp with the managed configuration file and args.
func (m *Manager) Run(ctx context.Context, args ...string) (*underlay.ExecResult, error) {
	cmd := fmt.Sprintf("ccp --config-file %s %s", shellescape.Quote(m.ConfigPath()), shellescape.QuoteCommand(args))
	logging.Info("CCP", "Running ccp %s on %s", strings.Join(args, " "), m.node)
	res, err := m.remote.CheckCall(ctx, m.node, strings.TrimSpace(cmd))
	if err != nil {
		return res, fmt.Errorf("ccp %s failed: %w", strings.Join(args, " "), err)
	}
	return res, nil
}

func withComponents(verb string, components []string) []string {
	args := []string{verb}
	for _, c := range components {
		args = append(args, "-c", c)
	}
	return args
}

// Fetch clones the component repositories.
func (m *Manager) Fetch(ctx context.Context) error {
	_, err := m.Run(ctx, "fetch")
	return err
}

// Build builds images for components, or all of them when none are given.
func (m *Manager) Build(ctx context.Context, components ...string) error {
	_, err := m.Run(ctx, withComponents("build", components)...)
	return err
}

// Deploy deploys components, or all of them when none are given.
func (m *Manager) Deploy(ctx context.Context, components ...string) error {
	_, err := m.Run(ctx, withComponents("deploy", components)...)
	return err
}

// Cleanup removes everything ccp deployed.
func (m *Manager) Cleanup(ctx context.Context) error {
	_, err := m.Run(ctx, "cleanup")
	return err
}

// Status returns the raw ccp status output.
func (m *Manager) Status(ctx context.Context) (*underlay.ExecResult, error) {
	return m.Run(ctx, "status")
}

// ShowDep returns the dependencies of the components, one per line.
func (m *Manager) ShowDep(ctx context.Context, components ...string) ([]string, error) {
	res, err := m.Run(ctx, append([]string{"show-dep"}, components...)...)
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, line := range res.Stdout {
		deps = append(deps, strings.Fields(line)...)
	}
	return deps, nil
}

// InstallRequirements installs ccp and its system prerequisites on the node.
func (m *Manager) InstallRequirements(ctx context.Context) error {
	cmds := []string{
		"apt-get update",
		"apt-get install -y python-dev python-pip git",
		"pip install --upgrade pip",
		"pip install " + shellescape.Quote(m.source),
	}
	for _, cmd := range cmds {
		if _, err := m.remote.SudoCheckCall(ctx, m.node, cmd); err != nil {
			return fmt.Errorf("failed to install ccp requirements: %w", err)
		}
	}
	logging.Info("CCP", "Installed ccp from %s on %s", m.source, m.node)
	return nil
}

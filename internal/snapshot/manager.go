package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ccptests/pkg/logging"
)

// ErrNotFound is returned when reverting to a snapshot that does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Recorder keeps track of the snapshots taken for an environment.
// *config.EnvironmentConfig implements it.
type Recorder interface {
	HasSnapshot(name string) bool
	MarkSnapshot(name string) error
	Save() error
}

// Manager decides between reverting to a snapshot and building the stage anew.
type Manager struct {
	provider Provider
	recorder Recorder
	enabled  bool
}

// NewManager creates a Manager. With enabled false every Ensure builds and no snapshot
// is taken.
func NewManager(provider Provider, recorder Recorder, enabled bool) *Manager {
	return &Manager{provider: provider, recorder: recorder, enabled: enabled}
}

// Enabled reports whether snapshots are used.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Ensure brings the environment to the stage called name. When snapshots are enabled
// and the snapshot exists the environment is reverted to it; otherwise build runs and,
// if snapshots are enabled, a snapshot is taken afterwards.
func (m *Manager) Ensure(ctx context.Context, name string, build func(ctx context.Context) error) error {
	if m.enabled {
		exists, err := m.provider.Exists(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check snapshot %s: %w", name, err)
		}
		if exists {
			return m.revert(ctx, name)
		}
	}

	logging.Info("Snapshot", "Building stage %s", name)
	start := time.Now()
	if err := build(ctx); err != nil {
		return fmt.Errorf("failed to build stage %s: %w", name, err)
	}
	logging.Info("Snapshot", "Built stage %s in %v", name, time.Since(start).Round(time.Second))

	if !m.enabled {
		return nil
	}
	return m.Take(ctx, name)
}

// Take snapshots the environment as name and records it.
func (m *Manager) Take(ctx context.Context, name string) error {
	if err := m.provider.Create(ctx, name, fmt.Sprintf("ccptest stage %s", name)); err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", name, err)
	}
	if err := m.mark(name); err != nil {
		return err
	}
	logging.Info("Snapshot", "Created snapshot %s", name)
	return nil
}

// Revert restores the named snapshot. It fails with ErrNotFound when it does not exist.
func (m *Manager) Revert(ctx context.Context, name string) error {
	exists, err := m.provider.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check snapshot %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.revert(ctx, name)
}

func (m *Manager) revert(ctx context.Context, name string) error {
	logging.Info("Snapshot", "Reverting to snapshot %s", name)
	if err := m.provider.Revert(ctx, name); err != nil {
		return fmt.Errorf("failed to revert to snapshot %s: %w", name, err)
	}
	if err := m.provider.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume after reverting to %s: %w", name, err)
	}
	return m.mark(name)
}

func (m *Manager) mark(name string) error {
	if m.recorder == nil || m.recorder.HasSnapshot(name) {
		return nil
	}
	if err := m.recorder.MarkSnapshot(name); err != nil {
		return fmt.Errorf("failed to record snapshot %s: %w", name, err)
	}
	return m.recorder.Save()
}

// List returns the snapshots of the environment.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.provider.List(ctx)
}

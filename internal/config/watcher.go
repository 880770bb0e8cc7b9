package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ccptests/pkg/logging"
)

// DefaultDebounceInterval collapses bursts of writes from editors and tools.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads an EnvironmentConfig whenever its file changes on disk.
//
// The parent directory is watched rather than the file itself so that atomic
// replacements (write to a temp file, then rename) are observed.
type Watcher struct {
	mu sync.Mutex

	config           *EnvironmentConfig
	debounceInterval time.Duration
	onReload         func(*EnvironmentConfig, error)

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for config. onReload, if not nil, is called after every
// reload attempt with its error.
func NewWatcher(config *EnvironmentConfig, debounceInterval time.Duration, onReload func(*EnvironmentConfig, error)) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = DefaultDebounceInterval
	}
	return &Watcher{
		config:           config,
		debounceInterval: debounceInterval,
		onReload:         onReload,
	}
}

// Start begins watching. It returns once the watch is established.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.config.Path())
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return err
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(ctx, fw, w.stopCh)

	logging.Info("Config", "Watching %s for environment config changes", w.config.Path())
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	_ = w.watcher.Close()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.running = false
}

func (w *Watcher) processEvents(ctx context.Context, fw *fsnotify.Watcher, stopCh <-chan struct{}) {
	target := filepath.Clean(w.config.Path())
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return

		case <-stopCh:
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Error("Config", err, "Environment config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, w.reload)
}

func (w *Watcher) reload() {
	err := w.config.Reload()
	if err != nil {
		logging.Error("Config", err, "Failed to reload environment config")
	} else {
		logging.Info("Config", "Reloaded environment config from %s", w.config.Path())
	}
	if w.onReload != nil {
		w.onReload(w.config, err)
	}
}

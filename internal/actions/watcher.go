package actions

import (
	"log/slog"
	"time"

	"github.com/lunamoth/heartflow/internal/fswatch"
)

// manifestDebounce is the delay before re-applying after a file change,
// collapsing editor save bursts into one reload.
const manifestDebounce = 500 * time.Millisecond

// ManifestWatcher re-applies an action manifest when the file changes.
// Registry mutation is not transactional with in-flight planning; a
// small staleness window is acceptable.
type ManifestWatcher struct {
	path      string
	reg       *Registry
	factories map[string]ExecutorFactory
	fw        *fswatch.Watcher
}

// NewManifestWatcher creates a watcher for the manifest at path.
func NewManifestWatcher(path string, reg *Registry, factories map[string]ExecutorFactory) (*ManifestWatcher, error) {
	w := &ManifestWatcher{
		path:      path,
		reg:       reg,
		factories: factories,
	}
	fw, err := fswatch.New(path, manifestDebounce, w.reload)
	if err != nil {
		return nil, err
	}
	w.fw = fw
	return w, nil
}

// Start begins watching. The manifest must already have been applied once
// by the caller; the watcher only handles subsequent edits.
func (w *ManifestWatcher) Start() error {
	if err := w.fw.Start(); err != nil {
		return err
	}
	slog.Info("action manifest watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (w *ManifestWatcher) Stop() {
	w.fw.Stop()
}

func (w *ManifestWatcher) reload() {
	m, err := LoadManifest(w.path)
	if err != nil {
		slog.Warn("manifest reload failed, keeping previous actions",
			"path", w.path, "error", err)
		return
	}
	if err := m.Apply(w.reg, w.factories); err != nil {
		slog.Warn("manifest apply failed", "path", w.path, "error", err)
		return
	}
	slog.Info("action manifest reloaded", "path", w.path, "actions", len(m.Actions))
}

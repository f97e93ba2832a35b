package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lunamoth/heartflow/internal/fswatch"
)

// ChangeHandler receives the freshly loaded config after a file change.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file on change. Reloads are debounced
// (300ms) so editor save sequences trigger one reload.
type Watcher struct {
	path string
	fw   *fswatch.Watcher

	mu       sync.Mutex
	handlers []ChangeHandler
}

// NewWatcher creates a config file watcher.
func NewWatcher(configPath string) (*Watcher, error) {
	cw := &Watcher{path: configPath}
	fw, err := fswatch.New(configPath, 300*time.Millisecond, cw.reload)
	if err != nil {
		return nil, err
	}
	cw.fw = fw
	return cw, nil
}

// OnChange registers a handler called with each successfully reloaded
// config. Handlers run on the watcher goroutine and must not block.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching the config file for changes.
func (cw *Watcher) Start() error {
	if err := cw.fw.Start(); err != nil {
		return err
	}
	slog.Info("config watcher started", "path", cw.path)
	return nil
}

// Stop halts the file watcher.
func (cw *Watcher) Stop() {
	cw.fw.Stop()
	slog.Info("config watcher stopped")
}

func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous config",
			"path", cw.path, "error", err)
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	slog.Info("config reloaded", "path", cw.path)
	for _, h := range handlers {
		h(cfg)
	}
}

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"finsight/internal/logging"
)

// Watcher reloads the config file on change and notifies a callback with the
// fresh config. Editors often write via rename, so the parent directory is
// watched rather than the file itself.
type Watcher struct {
	path     string
	onReload func(*Config)

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	debounce *time.Timer
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, onReload func(*Config)) *Watcher {
	return &Watcher{path: path, onReload: onReload}
}

// Start begins watching. Stop must be called to release the inotify handle.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fw)
	logging.Boot("watching %s for config changes", w.path)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw := w.watcher
	done := w.done
	w.watcher = nil
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.mu.Unlock()

	if fw != nil {
		fw.Close()
		<-done
	}
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	defer close(w.done)
	target := filepath.Clean(w.path)

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.BootError("config watcher error: %v", err)
		}
	}
}

// scheduleReload debounces rapid write bursts into a single reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(200*time.Millisecond, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.BootError("config reload failed: %v", err)
		return
	}
	logging.Boot("config reloaded from %s", w.path)
	w.onReload(cfg)
}

package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sleuth/internal/logging"
)

// Watcher reloads the config file when it changes on disk and notifies
// registered callbacks. Editors often emit several events per save, so
// events are debounced before reloading.
type Watcher struct {
	path     string
	notifier *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []func(*Config)
	debounce  *time.Timer

	done chan struct{}
	once sync.Once
}

const debounceWindow = 250 * time.Millisecond

// NewWatcher starts watching the directory containing path. Watching the
// directory rather than the file survives rename-based atomic saves.
func NewWatcher(path string) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := notifier.Add(filepath.Dir(path)); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		notifier: notifier,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// OnReload registers a callback invoked with the freshly loaded config.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			logging.BootError("config watcher: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceWindow, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.BootError("config reload failed, keeping previous: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.BootError("reloaded config invalid, keeping previous: %v", err)
		return
	}

	logging.Boot("config reloaded from %s", w.path)
	logging.ReloadConfig()

	w.mu.Lock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.notifier.Close()
}

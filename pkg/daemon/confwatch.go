package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/cardview/pkg/cardview/logging"
)

// ConfigWatcher watches the config file for changes and invokes a callback
// after edits settle. Watching the parent directory instead of the file
// itself survives editors that replace the file via rename.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	apply   func()
	logger  *logging.Logger
}

// NewConfigWatcher builds a watcher for the given config file. The apply
// callback runs on the watcher goroutine, debounced to one call per burst
// of filesystem events.
func NewConfigWatcher(path string, apply func()) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &ConfigWatcher{
		path:    abs,
		watcher: fsw,
		apply:   apply,
		logger:  logging.Get("daemon"),
	}, nil
}

// Run processes filesystem events until the context is canceled.
func (c *ConfigWatcher) Run(ctx context.Context) {
	const debounce = 500 * time.Millisecond

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != c.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			c.logger.Info("config file changed, reloading", "path", c.path)
			c.apply()

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("config watch error", "error", err)
		}
	}
}

// Close releases the underlying filesystem watcher.
func (c *ConfigWatcher) Close() error {
	return c.watcher.Close()
}

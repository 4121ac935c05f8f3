package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/rw/internal/logging"
)

// Watcher re-reads a set of config files whenever one of them changes
type Watcher struct {
	paths    []string
	watched  map[string]bool
	fs       *fsnotify.Watcher
	callback ChangeCallback
	logger   logging.Logger
}

// NewWatcher watches paths. The directories holding the files are
// watched, so files replaced by rename are picked up too.
func NewWatcher(paths []string, callback ChangeCallback, logger logging.Logger) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, ErrNoFilesToWatch
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		paths:    paths,
		watched:  make(map[string]bool),
		fs:       fs,
		callback: callback,
		logger:   logging.OrDiscard(logger),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		w.watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run delivers changes to the callback until ctx is done or Close is
// called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.watched[abs] {
				continue
			}
			w.logger.Info("Config file changed", "file", ev.Name)
			settings, err := ReadFiles(w.paths...)
			w.callback(settings, err)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when the config file changes on disk.
// Only tunable intervals are meant to change at runtime; a reload never
// restarts the browser process or the HTTP server.
type Watcher struct {
	loader   *Loader
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	onReload func(*Config)
	done     chan struct{}
}

// NewWatcher creates a watcher for the loader's resolved config file.
// onReload is invoked with the freshly loaded config after each valid change;
// invalid configs are logged and skipped.
func NewWatcher(loader *Loader, logger *slog.Logger, onReload func(*Config)) (*Watcher, error) {
	path := loader.ConfigFileUsed()
	if path == "" {
		return nil, nil // nothing to watch, defaults only
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which drops the
	// watch when pointed at the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		loader:   loader,
		logger:   logger,
		fsw:      fsw,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	go w.run(path)
	return w, nil
}

func (w *Watcher) run(path string) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := w.loader.Load()
			if err != nil {
				w.logger.Warn("config reload skipped", slog.String("error", err.Error()))
				continue
			}
			w.logger.Info("config reloaded", slog.String("path", path))
			w.onReload(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.String("error", err.Error()))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}

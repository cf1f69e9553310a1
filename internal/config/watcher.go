package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"incidentd/internal/logging"
)

// Watch reloads the config file whenever it changes and invokes onChange
// with the new configuration. Reload errors are logged and skipped so a
// transient bad write never kills the watcher. Watch blocks until the
// context is cancelled.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	if path == "" {
		path = DefaultPath
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file, which drops a
	// watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)
	logging.Boot("watching config %s", target)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				logging.Get(logging.CategoryBoot).Warn("config reload skipped: %v", err)
				continue
			}
			logging.Boot("config reloaded from %s", target)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryBoot).Warn("config watcher error: %v", err)
		}
	}
}

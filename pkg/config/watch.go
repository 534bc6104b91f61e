package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/portagedev/portage/pkg/observability"
)

// Watch monitors the given config file and invokes onChange with the
// freshly loaded configuration whenever the file is written or replaced.
// Reload failures are logged and the previous configuration stays in
// effect. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log *observability.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file itself: editors and
	// config-map mounts replace the file, which breaks a direct watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

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
			cfg, err := Load(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Error("config reload failed; keeping previous configuration")
				continue
			}
			log.WithField("path", path).Info("configuration reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the config file on change and hands the result to onChange.
// Editors replace files rather than writing in place, so the parent
// directory is watched and events are debounced. Blocks until ctx ends.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	log := logger.With().Str("component", "config-watch").Logger()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		case <-pending:
			pending = nil
			cfg, err := LoadFrom(path)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring unreadable config change")
				continue
			}
			log.Info().Msg("config reloaded")
			onChange(cfg)
		}
	}
}

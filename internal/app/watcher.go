package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// WatchOverlay reloads plugins whenever the overlay file changes. It blocks
// until ctx is cancelled. Without a configured file it just waits.
func (a *App) WatchOverlay(ctx context.Context) error {
	path := a.Config.CommandsFile
	if path == "" {
		<-ctx.Done()
		return nil
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	a.log.Info().Str("path", path).Msg("Watching command overlay")

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Error().Err(err).Msg("Overlay watcher error")

		case <-timer.C:
			if err := a.Reload(ctx); err != nil {
				a.log.Error().Err(err).Msg("Failed to reload command overlay")
			}
		}
	}
}

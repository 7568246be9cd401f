package conf

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
)

// watchDebounce collapses the burst of events editors emit for one save.
const watchDebounce = 250 * time.Millisecond

// WatchFile calls onChange after path is written, created or replaced. The
// parent directory is watched so atomic saves (write temp, rename) are seen.
// It returns once the watch is established and stops when ctx is done.
func WatchFile(ctx context.Context, path string, log logger.Logger, onChange func()) error {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Module("conf")

	abs, err := filepath.Abs(path)
	if err != nil {
		return rulesError(err, "resolve_watch_path", path)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return rulesError(err, "create_watcher", path)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return rulesError(err, "watch_dir", path)
	}

	log.Info("watching file for changes", logger.String("path", abs))

	go func() {
		defer func() { _ = watcher.Close() }()

		var timer *time.Timer
		fire := make(chan struct{}, 1)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				log.Info("watched file changed", logger.String("path", abs))
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("file watcher error", logger.Error(errors.New(err).
					Component("conf").
					Category(errors.CategoryConfiguration).
					Context("path", abs).
					Build()))
			}
		}
	}()
	return nil
}

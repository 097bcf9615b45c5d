package dataset

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch watches dir (a dataset directory, not a whole project tree) and
// sends on the returned channel when any file in it is written, created,
// removed or renamed. The channel holds one pending signal: changes that
// arrive before the receiver reads it are folded into that signal. The
// channel is closed when ctx is done or the watcher's event or error
// stream closes; if the watcher cannot be started, Watch returns the error
// and no channel. Callers re-run dataset.Load(dir) on receipt.
func Watch(ctx context.Context, dir string) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer close(changed)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("dataset watcher error", slog.String("error", err.Error()))
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changed <- struct{}{}:
				default: // a reload is already pending
				}
			}
		}
	}()

	return changed, nil
}

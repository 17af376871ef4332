package fsqueue

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/phrazzld/goalq/internal/domain"
)

// Watch calls onEnqueue whenever a task file appears in queued/, which lets
// a dispatcher running in another process wake up without waiting for its
// next poll. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onEnqueue func(id string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.partitionDir(domain.TaskStateQueued)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
				continue
			}
			onEnqueue(strings.TrimSuffix(name, recordExt))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("queue watcher error", slog.String("error", err.Error()))
		}
	}
}

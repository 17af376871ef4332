// Package fsqueue implements store.TaskStore on a local directory tree.
//
// Each state is a directory holding one JSON file per task. A task leaves
// queued/ through a single rename(2), so when the dispatcher and a
// canceller race only one rename can find the source file. Timestamps and
// results live in stamp files that are published before the rename, which
// keeps every task visible in exactly one state with its stamps in place.
package fsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/store"
)

// Store is a directory-backed task store.
type Store struct {
	root   string
	logger *slog.Logger
}

var _ store.TaskStore = (*Store)(nil)

// New opens the queue directory at root, creating the layout if needed.
func New(root string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}

	s := &Store{root: root, logger: log.With(slog.String("component", "fsqueue"))}

	dirs := []string{idsDir, stampsDir}
	for _, p := range partitions {
		dirs = append(dirs, string(p))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o700); err != nil {
			return nil, store.Unavailable("open", err)
		}
	}

	return s, nil
}

// Root returns the queue directory.
func (s *Store) Root() string {
	return s.root
}

// Create implements store.TaskStore. The id is reserved with O_EXCL
// before the task file appears, so an id is never handed out twice.
func (s *Store) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.State != domain.TaskStateQueued {
		return fmt.Errorf("%w: new tasks must be queued", domain.ErrInvalidTransition)
	}

	f, err := os.OpenFile(filepath.Join(s.root, idsDir, task.ID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return store.ErrTaskExists
		}
		return store.Unavailable("create", err)
	}
	if err := f.Close(); err != nil {
		return store.Unavailable("create", err)
	}

	data, err := json.Marshal(record{
		ID:        task.ID,
		Goal:      task.Goal,
		MaxSteps:  task.MaxSteps,
		CreatedAt: task.CreatedAt.UTC(),
	})
	if err != nil {
		return store.Unavailable("create", err)
	}

	if err := writeFileAtomic(s.partitionDir(domain.TaskStateQueued), task.ID+recordExt, data); err != nil {
		return store.Unavailable("create", err)
	}
	return nil
}

// Get implements store.TaskStore.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	if domain.ValidateTaskID(id) != nil {
		return nil, store.ErrTaskNotFound
	}

	for _, state := range partitions {
		rec, modTime, err := readRecord(s.recordPath(state, id))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, store.Unavailable("get", err)
		}
		task, err := s.assemble(rec, state, modTime)
		if err != nil {
			return nil, store.Unavailable("get", err)
		}
		return task, nil
	}

	return nil, store.ErrTaskNotFound
}

// List implements store.TaskStore. Partitions are read in lifecycle order
// and a task seen twice keeps its later state.
func (s *Store) List(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error) {
	states := partitions
	if opts.State != "" {
		states = []domain.TaskState{opts.State}
	}

	byID := make(map[string]*domain.Task)
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(s.partitionDir(state))
		if err != nil {
			return nil, store.Unavailable("list", err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
				continue
			}

			rec, modTime, err := readRecord(filepath.Join(s.partitionDir(state), name))
			if errors.Is(err, fs.ErrNotExist) {
				// Moved on since ReadDir; a later partition has it.
				continue
			}
			if err != nil {
				s.logger.Warn("skipping unreadable task file",
					slog.String("state", string(state)),
					slog.String("file", name),
					slog.String("error", err.Error()))
				continue
			}

			task, err := s.assemble(rec, state, modTime)
			if err != nil {
				s.logger.Warn("skipping inconsistent task file",
					slog.String("file", name),
					slog.String("error", err.Error()))
				continue
			}
			byID[task.ID] = task
		}
	}

	tasks := make([]*domain.Task, 0, len(byID))
	for _, task := range byID {
		tasks = append(tasks, task)
	}
	return store.ApplyListOptions(tasks, opts), nil
}

// Move implements store.TaskStore.
func (s *Store) Move(ctx context.Context, m store.Move) (*domain.Task, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if domain.ValidateTaskID(m.TaskID) != nil {
		return nil, store.ErrTaskNotFound
	}

	src := s.recordPath(m.From, m.TaskID)
	dst := s.recordPath(m.To, m.TaskID)

	rec, modTime, err := readRecord(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, s.lost(m.TaskID)
	}
	if err != nil {
		return nil, store.Unavailable("move", err)
	}

	if err := s.stamp(m); err != nil {
		return nil, store.Unavailable("move", err)
	}

	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, s.lost(m.TaskID)
		}
		return nil, store.Unavailable("move", err)
	}

	task, err := s.assemble(rec, m.To, modTime)
	if err != nil {
		return nil, store.Unavailable("move", err)
	}
	return task, nil
}

// stamp records the transition's timestamp (and result) before the rename
// makes the new state visible.
func (s *Store) stamp(m store.Move) error {
	switch m.To {
	case domain.TaskStateProcessing:
		_, err := publishOnce(s.stampPath(m.TaskID, stampStarted), encodeTime(m.At))
		return err
	case domain.TaskStateCancelled:
		_, err := publishOnce(s.stampPath(m.TaskID, stampCancelled), encodeTime(m.At))
		return err
	case domain.TaskStateCompleted, domain.TaskStateFailed:
		// Only the owner of a processing task finishes it, so overwriting is safe.
		data, err := json.Marshal(finishedStamp{FinishedAt: m.At.UTC(), Result: m.Result})
		if err != nil {
			return err
		}
		return writeFileAtomic(filepath.Join(s.root, stampsDir), m.TaskID+stampFinished, data)
	}
	return nil
}

// lost classifies a source file that is gone: the task either moved on
// (a lost race) or never existed.
func (s *Store) lost(id string) error {
	if _, err := os.Stat(filepath.Join(s.root, idsDir, id)); err == nil {
		return store.ErrStateConflict
	}
	return store.ErrTaskNotFound
}

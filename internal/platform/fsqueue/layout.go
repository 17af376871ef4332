package fsqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
)

const (
	idsDir    = "ids"
	stampsDir = "stamps"
	recordExt = ".json"

	stampStarted   = ".started"
	stampCancelled = ".cancelled"
	stampFinished  = ".finished"
)

// partitions lists the state directories in lifecycle order. Readers walk
// them in this order: a task only ever moves to a later entry, so a walk
// can see it twice but never miss it.
var partitions = []domain.TaskState{
	domain.TaskStateQueued,
	domain.TaskStateProcessing,
	domain.TaskStateCompleted,
	domain.TaskStateFailed,
	domain.TaskStateCancelled,
}

// record is the immutable part of a task, written once at creation.
type record struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	MaxSteps  int       `json:"max_steps"`
	CreatedAt time.Time `json:"created_at"`
}

type finishedStamp struct {
	FinishedAt time.Time       `json:"finished_at"`
	Result     json.RawMessage `json:"result,omitempty"`
}

func (s *Store) partitionDir(state domain.TaskState) string {
	return filepath.Join(s.root, string(state))
}

func (s *Store) recordPath(state domain.TaskState, id string) string {
	return filepath.Join(s.partitionDir(state), id+recordExt)
}

func (s *Store) stampPath(id, kind string) string {
	return filepath.Join(s.root, stampsDir, id+kind)
}

// readRecord reads a task file, returning fs.ErrNotExist when it has moved away.
func readRecord(path string) (*record, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("corrupt task file %s: %w", filepath.Base(path), err)
	}
	return &rec, info.ModTime(), nil
}

// writeFileAtomic publishes data under dir/name via a temp file and rename,
// so readers never observe a partial file.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// publishOnce writes data to path only if nothing is there yet and returns
// whatever content ends up published. The hard link fails when another
// writer got there first, in which case their content wins.
func publishOnce(path string, data []byte) ([]byte, error) {
	dir, name := filepath.Split(path)

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	err = os.Link(tmpName, path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, err
	}
	return os.ReadFile(path)
}

func encodeTime(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

// readTimeStamp returns the stamped time, or fallback when the stamp is missing or unreadable.
func readTimeStamp(path string, fallback time.Time) time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return fallback
	}
	return t
}

// assemble rebuilds a task in state from its record and stamps by replaying
// the lifecycle, so clamping matches domain.Task.Transition exactly.
func (s *Store) assemble(rec *record, state domain.TaskState, modTime time.Time) (*domain.Task, error) {
	task := &domain.Task{
		ID:        rec.ID,
		Goal:      rec.Goal,
		MaxSteps:  rec.MaxSteps,
		State:     domain.TaskStateQueued,
		CreatedAt: rec.CreatedAt.UTC(),
	}

	switch state {
	case domain.TaskStateQueued:
		return task, nil

	case domain.TaskStateCancelled:
		at := readTimeStamp(s.stampPath(rec.ID, stampCancelled), modTime)
		return task, task.Transition(domain.TaskStateCancelled, at, nil)

	case domain.TaskStateProcessing, domain.TaskStateCompleted, domain.TaskStateFailed:
		started := readTimeStamp(s.stampPath(rec.ID, stampStarted), modTime)
		if err := task.Transition(domain.TaskStateProcessing, started, nil); err != nil {
			return nil, err
		}
		if state == domain.TaskStateProcessing {
			return task, nil
		}

		fin := finishedStamp{FinishedAt: modTime}
		if data, err := os.ReadFile(s.stampPath(rec.ID, stampFinished)); err == nil {
			if err := json.Unmarshal(data, &fin); err != nil {
				s.logger.Warn("ignoring corrupt finish stamp", "task_id", rec.ID, "error", err)
				fin = finishedStamp{FinishedAt: modTime}
			}
		}
		return task, task.Transition(state, fin.FinishedAt, fin.Result)
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrInvalidState, state)
}

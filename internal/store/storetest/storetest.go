// Package storetest holds the behavioural contract every store.TaskStore
// implementation must satisfy. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.TaskStore

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes the contract suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("Cancel", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("MoveConflicts", func(t *testing.T) { testMoveConflicts(t, newStore(t)) })
	t.Run("InvalidEdge", func(t *testing.T) { testInvalidEdge(t, newStore(t)) })
	t.Run("ListOrderingAndFilter", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ConcurrentClaimAndCancel", func(t *testing.T) { testConcurrentClaimAndCancel(t, newStore(t)) })
	t.Run("ListDuringMoves", func(t *testing.T) { testListDuringMoves(t, newStore(t)) })
}

// NewTask builds a queued task created at base+offset.
func NewTask(t *testing.T, id string, offset time.Duration) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(id, "goal for "+id, 5, base.Add(offset))
	require.NoError(t, err)
	return task
}

func testCreateAndGet(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := NewTask(t, "alpha", 0)

	require.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.ID)
	assert.Equal(t, task.Goal, got.Goal)
	assert.Equal(t, 5, got.MaxSteps)
	assert.Equal(t, domain.TaskStateQueued, got.State)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt), "created_at round trip")
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Result)
}

func testDuplicateID(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewTask(t, "dup", 0)))

	err := s.Create(ctx, NewTask(t, "dup", time.Second))
	assert.ErrorIs(t, err, store.ErrTaskExists)

	_, err = s.Move(ctx, store.Move{
		TaskID: "dup", From: domain.TaskStateQueued, To: domain.TaskStateCancelled, At: base.Add(time.Minute),
	})
	require.NoError(t, err)

	err = s.Create(ctx, NewTask(t, "dup", 2*time.Second))
	assert.ErrorIs(t, err, store.ErrTaskExists, "ids are never reused")
}

func testGetUnknown(t *testing.T, s store.TaskStore) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	_, err = s.Move(ctx, store.Move{
		TaskID: "missing", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: base,
	})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func testLifecycle(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewTask(t, "life", 0)))

	startedAt := base.Add(time.Second)
	claimed, err := s.Move(ctx, store.Move{
		TaskID: "life", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: startedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateProcessing, claimed.State)
	require.NotNil(t, claimed.StartedAt)
	assert.True(t, startedAt.Equal(*claimed.StartedAt))

	got, err := s.Get(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateProcessing, got.State)
	require.NotNil(t, got.StartedAt)
	assert.True(t, startedAt.Equal(*got.StartedAt))
	assert.Nil(t, got.FinishedAt)

	finishedAt := base.Add(3 * time.Second)
	result := json.RawMessage(`{"success":true,"output":{"steps":3}}`)
	done, err := s.Move(ctx, store.Move{
		TaskID: "life", From: domain.TaskStateProcessing, To: domain.TaskStateCompleted, At: finishedAt, Result: result,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, done.State)

	got, err = s.Get(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, got.State)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, startedAt.Equal(*got.StartedAt), "started_at is set once")
	assert.True(t, finishedAt.Equal(*got.FinishedAt))
	assert.JSONEq(t, string(result), string(got.Result))
	assert.False(t, got.StartedAt.Before(got.CreatedAt))
	assert.False(t, got.FinishedAt.Before(*got.StartedAt))

	_, err = s.Move(ctx, store.Move{
		TaskID: "life", From: domain.TaskStateProcessing, To: domain.TaskStateFailed, At: finishedAt,
	})
	assert.ErrorIs(t, err, store.ErrStateConflict, "terminal tasks never move again")
}

func testCancel(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewTask(t, "cxl", 0)))

	at := base.Add(time.Minute)
	cancelled, err := s.Move(ctx, store.Move{
		TaskID: "cxl", From: domain.TaskStateQueued, To: domain.TaskStateCancelled, At: at,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCancelled, cancelled.State)

	got, err := s.Get(ctx, "cxl")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCancelled, got.State)
	assert.Nil(t, got.StartedAt, "a cancelled task never started")
	require.NotNil(t, got.FinishedAt)
	assert.True(t, at.Equal(*got.FinishedAt))

	_, err = s.Move(ctx, store.Move{
		TaskID: "cxl", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: at,
	})
	assert.ErrorIs(t, err, store.ErrStateConflict, "cancelled tasks are never dispatched")
}

func testMoveConflicts(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewTask(t, "race", 0)))

	claim := store.Move{TaskID: "race", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: base}
	_, err := s.Move(ctx, claim)
	require.NoError(t, err)

	_, err = s.Move(ctx, claim)
	assert.ErrorIs(t, err, store.ErrStateConflict)

	_, err = s.Move(ctx, store.Move{
		TaskID: "race", From: domain.TaskStateQueued, To: domain.TaskStateCancelled, At: base,
	})
	assert.ErrorIs(t, err, store.ErrStateConflict)
	assert.NotErrorIs(t, err, store.ErrTaskNotFound)
}

func testInvalidEdge(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewTask(t, "edge", 0)))

	_, err := s.Move(ctx, store.Move{
		TaskID: "edge", From: domain.TaskStateQueued, To: domain.TaskStateCompleted, At: base,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.Get(ctx, "edge")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateQueued, got.State)
}

func testList(t *testing.T, s store.TaskStore) {
	ctx := context.Background()

	// Created out of order, with a tie broken by id.
	require.NoError(t, s.Create(ctx, NewTask(t, "c", 3*time.Second)))
	require.NoError(t, s.Create(ctx, NewTask(t, "a", time.Second)))
	require.NoError(t, s.Create(ctx, NewTask(t, "b2", 2*time.Second)))
	require.NoError(t, s.Create(ctx, NewTask(t, "b1", 2*time.Second)))

	_, err := s.Move(ctx, store.Move{TaskID: "a", From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: base.Add(time.Minute)})
	require.NoError(t, err)

	all, err := s.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids(all))

	queued, err := s.List(ctx, store.ListOptions{State: domain.TaskStateQueued})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "c"}, ids(queued))
	for _, task := range queued {
		assert.Equal(t, domain.TaskStateQueued, task.State)
	}

	limited, err := s.List(ctx, store.ListOptions{State: domain.TaskStateQueued, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids(limited))

	none, err := s.List(ctx, store.ListOptions{State: domain.TaskStateFailed})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// testConcurrentClaimAndCancel races a claimer and several cancellers on
// each task. Exactly one mover may win per task.
func testConcurrentClaimAndCancel(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	const tasks = 20
	const cancellers = 3

	for i := range tasks {
		require.NoError(t, s.Create(ctx, NewTask(t, fmt.Sprintf("t%02d", i), time.Duration(i)*time.Millisecond)))
	}

	for i := range tasks {
		id := fmt.Sprintf("t%02d", i)
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		mover := func(to domain.TaskState) {
			defer wg.Done()
			<-start
			_, err := s.Move(ctx, store.Move{TaskID: id, From: domain.TaskStateQueued, To: to, At: base.Add(time.Hour)})
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, store.ErrStateConflict):
				conflicts.Add(1)
			}
		}

		wg.Add(1 + cancellers)
		go mover(domain.TaskStateProcessing)
		for range cancellers {
			go mover(domain.TaskStateCancelled)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "task %s must have exactly one winner", id)
		assert.Equal(t, int32(cancellers), conflicts.Load())

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, []domain.TaskState{domain.TaskStateProcessing, domain.TaskStateCancelled}, got.State)
		if got.State == domain.TaskStateCancelled {
			assert.Nil(t, got.StartedAt)
		}
	}
}

// testListDuringMoves drives tasks through their lifecycle while another
// goroutine lists. Every listing must contain every task exactly once.
func testListDuringMoves(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	const tasks = 25

	for i := range tasks {
		require.NoError(t, s.Create(ctx, NewTask(t, fmt.Sprintf("m%02d", i), time.Duration(i)*time.Millisecond)))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range tasks {
			id := fmt.Sprintf("m%02d", i)
			if i%3 == 0 {
				_, _ = s.Move(ctx, store.Move{TaskID: id, From: domain.TaskStateQueued, To: domain.TaskStateCancelled, At: base.Add(time.Hour)})
				continue
			}
			_, _ = s.Move(ctx, store.Move{TaskID: id, From: domain.TaskStateQueued, To: domain.TaskStateProcessing, At: base.Add(time.Hour)})
			_, _ = s.Move(ctx, store.Move{TaskID: id, From: domain.TaskStateProcessing, To: domain.TaskStateFailed, At: base.Add(2 * time.Hour), Result: json.RawMessage(`{"success":false}`)})
		}
	}()

	for listing := 0; ; listing++ {
		all, err := s.List(ctx, store.ListOptions{})
		require.NoError(t, err)

		seen := make(map[string]int, len(all))
		for _, task := range all {
			seen[task.ID]++
		}
		require.Len(t, seen, tasks, "listing %d lost a task", listing)
		for id, n := range seen {
			require.Equal(t, 1, n, "listing %d saw %s %d times", listing, id, n)
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

func ids(tasks []*domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

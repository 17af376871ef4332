package memory_test

import (
	"context"
	"testing"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/platform/memory"
	"github.com/phrazzld/goalq/internal/store"
	"github.com/phrazzld/goalq/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.TaskStore {
		return memory.NewTaskStore()
	})
}

func TestReturnedTasksAreCopies(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	ctx := context.Background()
	task := storetest.NewTask(t, "copy", 0)
	require.NoError(t, s.Create(ctx, task))

	task.Goal = "mutated after create"
	got, err := s.Get(ctx, "copy")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated after create", got.Goal)

	got.State = domain.TaskStateCompleted
	again, err := s.Get(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateQueued, again.State)
}

func TestCreateRejectsInvalidTask(t *testing.T) {
	t.Parallel()

	s := memory.NewTaskStore()
	err := s.Create(context.Background(), &domain.Task{ID: "x", Goal: "", MaxSteps: 1, State: domain.TaskStateQueued})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

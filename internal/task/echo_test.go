package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoExecutor(t *testing.T) {
	t.Parallel()

	outcome, err := EchoExecutor{}.Execute(context.Background(), "open the calculator", 3)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.Steps)
	assert.JSONEq(t, `{"echo":"open the calculator"}`, string(outcome.Output))
}

func TestEchoExecutorHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EchoExecutor{Delay: time.Hour}.Execute(ctx, "g", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

package task

import (
	"context"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/platform/memory"
	"github.com/phrazzld/goalq/internal/store"
)

// MockTaskStore delegates to an in-memory store unless a Fn field overrides a method.
type MockTaskStore struct {
	Inner *memory.TaskStore

	CreateFn func(ctx context.Context, task *domain.Task) error
	GetFn    func(ctx context.Context, id string) (*domain.Task, error)
	ListFn   func(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error)
	MoveFn   func(ctx context.Context, m store.Move) (*domain.Task, error)
}

func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{Inner: memory.NewTaskStore()}
}

func (s *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, task)
	}
	return s.Inner.Create(ctx, task)
}

func (s *MockTaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}
	return s.Inner.Get(ctx, id)
}

func (s *MockTaskStore) List(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error) {
	if s.ListFn != nil {
		return s.ListFn(ctx, opts)
	}
	return s.Inner.List(ctx, opts)
}

func (s *MockTaskStore) Move(ctx context.Context, m store.Move) (*domain.Task, error) {
	if s.MoveFn != nil {
		return s.MoveFn(ctx, m)
	}
	return s.Inner.Move(ctx, m)
}

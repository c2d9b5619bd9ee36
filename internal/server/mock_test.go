package server

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/lifecycle"
	"github.com/jupyter-infra/dataproc-hub/internal/spawner"
)

// MockSpawner mocks the spawner engine for testing
type MockSpawner struct {
	mock.Mock
}

func (m *MockSpawner) Start(ctx context.Context, user spawner.User, form v1alpha1.FormSelection) (*lifecycle.StartResult, error) {
	args := m.Called(ctx, user, form)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.StartResult), args.Error(1)
}

func (m *MockSpawner) Stop(ctx context.Context, user spawner.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockSpawner) Poll(ctx context.Context, user spawner.User) v1alpha1.PollStatus {
	return m.Called(ctx, user).Get(0).(v1alpha1.PollStatus)
}

func (m *MockSpawner) Progress(ctx context.Context, user spawner.User, from int) (<-chan v1alpha1.ProgressEvent, error) {
	args := m.Called(ctx, user, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan v1alpha1.ProgressEvent), args.Error(1)
}

func (m *MockSpawner) Options(ctx context.Context) (*v1alpha1.OptionsSchema, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*v1alpha1.OptionsSchema), args.Error(1)
}

func (m *MockSpawner) GatewayURL(ctx context.Context, user spawner.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

// events returns a closed channel holding events
func events(list ...v1alpha1.ProgressEvent) <-chan v1alpha1.ProgressEvent {
	ch := make(chan v1alpha1.ProgressEvent, len(list))
	for _, event := range list {
		ch <- event
	}
	close(ch)
	return ch
}

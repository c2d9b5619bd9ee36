package lifecycle

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/template"
)

// MockClient mocks the control plane for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Create(ctx context.Context, req *v1alpha1.ClusterRequest) (*v1alpha1.OperationHandle, error) {
	args := m.Called(ctx, req)
	if op := args.Get(0); op != nil {
		return op.(*v1alpha1.OperationHandle), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Get(ctx context.Context, project, region, name string) (*v1alpha1.ClusterRecord, error) {
	args := m.Called(ctx, project, region, name)
	if record := args.Get(0); record != nil {
		return record.(*v1alpha1.ClusterRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Delete(ctx context.Context, project, region, name string) error {
	args := m.Called(ctx, project, region, name)
	return args.Error(0)
}

func (m *MockClient) GetOperation(ctx context.Context, name string) (*v1alpha1.OperationStatus, error) {
	args := m.Called(ctx, name)
	if status := args.Get(0); status != nil {
		return status.(*v1alpha1.OperationStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ListAutoscalingPolicies(ctx context.Context, project, region string) ([]string, error) {
	args := m.Called(ctx, project, region)
	if policies := args.Get(0); policies != nil {
		return policies.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// staticLoader serves templates parsed from memory
type staticLoader map[string]string

func (l staticLoader) Load(_ context.Context, path string) (*template.Template, error) {
	return template.Parse(path, []byte(l[path]))
}

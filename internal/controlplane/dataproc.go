package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	dataproc "google.golang.org/api/dataproc/v1"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/gcp"
)

// RegionalEndpoint returns the regional REST endpoint of the cluster service
func RegionalEndpoint(region string) string {
	return fmt.Sprintf("https://%s-dataproc.googleapis.com/", region)
}

// DataprocClient implements Client with the Dataproc v1 REST API
type DataprocClient struct {
	service *dataproc.Service
	now     func() time.Time
}

// NewDataprocClient creates a client bound to the regional endpoint unless
// cfg overrides the endpoint
func NewDataprocClient(ctx context.Context, region string, cfg gcp.ClientConfig) (*DataprocClient, error) {
	if cfg.Endpoint == "" && region != "" {
		cfg.Endpoint = RegionalEndpoint(region)
	}
	service, err := dataproc.NewService(ctx, cfg.Options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataproc client: %w", err)
	}
	return &DataprocClient{service: service, now: time.Now}, nil
}

// Create submits a cluster creation and returns its operation. Every call
// uses a new request id.
func (c *DataprocClient) Create(ctx context.Context, req *v1alpha1.ClusterRequest) (*v1alpha1.OperationHandle, error) {
	logger := logf.FromContext(ctx).WithName("dataproc-client")

	started := c.now()
	op, err := c.service.Projects.Regions.Clusters.
		Create(req.ProjectID, req.Region, toCluster(req)).
		RequestId(uuid.NewString()).
		Context(ctx).
		Do()
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to create cluster %s", req.ClusterName)
	}

	handle := &v1alpha1.OperationHandle{
		Name:        op.Name,
		ClusterName: req.ClusterName,
		StartTime:   started,
	}
	if len(op.Metadata) > 0 {
		var meta dataproc.ClusterOperationMetadata
		if err := json.Unmarshal(op.Metadata, &meta); err != nil {
			logger.V(1).Info("Ignoring unreadable operation metadata", "operation", op.Name, "error", err.Error())
		} else {
			handle.ClusterUUID = meta.ClusterUuid
		}
	}
	logger.Info("Submitted cluster creation", "clusterName", req.ClusterName, "operation", op.Name)
	return handle, nil
}

// Get reads a cluster
func (c *DataprocClient) Get(ctx context.Context, project, region, name string) (*v1alpha1.ClusterRecord, error) {
	cluster, err := c.service.Projects.Regions.Clusters.Get(project, region, name).Context(ctx).Do()
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to get cluster %s", name)
	}
	return toRecord(cluster), nil
}

// Delete requests the deletion of a cluster without waiting for it
func (c *DataprocClient) Delete(ctx context.Context, project, region, name string) error {
	_, err := c.service.Projects.Regions.Clusters.Delete(project, region, name).Context(ctx).Do()
	if err != nil {
		return gcp.ClassifyError(err, "failed to delete cluster %s", name)
	}
	return nil
}

// GetOperation polls a long-running operation
func (c *DataprocClient) GetOperation(ctx context.Context, name string) (*v1alpha1.OperationStatus, error) {
	op, err := c.service.Projects.Regions.Operations.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to get operation %s", name)
	}
	status := &v1alpha1.OperationStatus{Done: op.Done}
	if op.Error != nil {
		status.Error = op.Error.Message
		if status.Error == "" {
			status.Error = fmt.Sprintf("operation failed with code %d", op.Error.Code)
		}
	}
	return status, nil
}

// ListAutoscalingPolicies returns the ids of the policies of a region
func (c *DataprocClient) ListAutoscalingPolicies(ctx context.Context, project, region string) ([]string, error) {
	parent := fmt.Sprintf("projects/%s/regions/%s", project, region)
	var ids []string
	err := c.service.Projects.Regions.AutoscalingPolicies.List(parent).Pages(ctx,
		func(page *dataproc.ListAutoscalingPoliciesResponse) error {
			for _, policy := range page.Policies {
				ids = append(ids, policy.Id)
			}
			return nil
		})
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to list autoscaling policies in %s", parent)
	}
	return ids, nil
}

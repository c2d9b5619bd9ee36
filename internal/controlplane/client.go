/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package controlplane talks to the managed cluster service: create, read
// and delete clusters, follow long-running operations, and list policies.
package controlplane

import (
	"context"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
)

// Client is the cluster control-plane surface used by the lifecycle controller.
// Get returns a NotFound error when the cluster does not exist.
type Client interface {
	Create(ctx context.Context, req *v1alpha1.ClusterRequest) (*v1alpha1.OperationHandle, error)
	Get(ctx context.Context, project, region, name string) (*v1alpha1.ClusterRecord, error)
	Delete(ctx context.Context, project, region, name string) error
	GetOperation(ctx context.Context, name string) (*v1alpha1.OperationStatus, error)
	ListAutoscalingPolicies(ctx context.Context, project, region string) ([]string, error)
}

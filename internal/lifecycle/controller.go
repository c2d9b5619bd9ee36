/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package lifecycle starts, stops and polls the cluster backing a user's
// notebook server.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/clusterconfig"
	"github.com/jupyter-infra/dataproc-hub/internal/controlplane"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/template"
)

// Gateway endpoint names advertised by clusters, in order of preference
var gatewayEndpoints = []string{"Jupyter", "JupyterLab"}

// TemplateLoader fetches cluster templates
type TemplateLoader interface {
	Load(ctx context.Context, path string) (*template.Template, error)
}

// Recorder observes lifecycle operations
type Recorder interface {
	ObserveCreateAttempt(zone string, err error)
	ObserveOperation(operation string, started time.Time, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCreateAttempt(string, error)         {}
func (noopRecorder) ObserveOperation(string, time.Time, error) {}

// Settings locate the clusters managed by a controller
type Settings struct {
	ProjectID string
	Region    string
	// ZoneLetters are the zones of Region tried when creation hits a quota
	ZoneLetters []string
	// CreateBackoff bounds the creation attempts; zero means DefaultCreateBackoff
	CreateBackoff wait.Backoff
}

// StartRequest describes the cluster to start
type StartRequest struct {
	// TemplatePath is the template to build from; empty builds from defaults only
	TemplatePath string
	Form         v1alpha1.FormSelection
	// Defaults carry the cluster name and the per-user identity.
	// Project and region come from the controller settings.
	Defaults clusterconfig.Defaults
	// Prepare runs once it is known the cluster must be created
	Prepare func(ctx context.Context) error
}

// StartResult tells the caller where the started cluster can be reached
type StartResult struct {
	ClusterName string
	Zone        string
	// Existing is true when the cluster was already present
	Existing bool
	// Operation is the create operation, nil for an existing cluster
	Operation *v1alpha1.OperationHandle
	// GatewayURL is the component gateway address, empty until advertised
	GatewayURL string
	// MasterFQDN is the internal address of the master node
	MasterFQDN string
}

// Address returns the gateway URL, or the master FQDN when no gateway is known
func (r *StartResult) Address() string {
	if r.GatewayURL != "" {
		return r.GatewayURL
	}
	return r.MasterFQDN
}

// Controller drives the clusters through the control plane
type Controller struct {
	client   controlplane.Client
	loader   TemplateLoader
	settings Settings
	recorder Recorder
}

// NewController creates a new Controller. recorder may be nil.
func NewController(client controlplane.Client, loader TemplateLoader, settings Settings, recorder Recorder) *Controller {
	if settings.CreateBackoff.Steps == 0 {
		settings.CreateBackoff = DefaultCreateBackoff
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Controller{
		client:   client,
		loader:   loader,
		settings: settings,
		recorder: recorder,
	}
}

// Start creates the cluster described by spec unless it already exists.
// A cluster pending deletion is a conflict.
func (c *Controller) Start(ctx context.Context, spec StartRequest) (result *StartResult, err error) {
	name := spec.Defaults.ClusterName
	logger := logf.FromContext(ctx).WithName("lifecycle").WithValues("clusterName", name)
	ctx = logf.IntoContext(ctx, logger)
	defer func(started time.Time) { c.recorder.ObserveOperation("start", started, err) }(time.Now())

	if c.settings.ProjectID == "" {
		return nil, spawnerrors.New(spawnerrors.KindConfiguration, "no project configured for cluster %s", name)
	}
	if name == "" {
		return nil, spawnerrors.New(spawnerrors.KindValidation, "cluster name is required")
	}

	record, err := c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name)
	switch {
	case err == nil:
		return c.existing(logger, name, record)
	case !spawnerrors.IsNotFound(err):
		return nil, fmt.Errorf("failed to read cluster %s: %w", name, err)
	}

	if spec.Prepare != nil {
		if err := spec.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	var tmpl *template.Template
	if spec.TemplatePath != "" {
		if tmpl, err = c.loader.Load(ctx, spec.TemplatePath); err != nil {
			return nil, err
		}
	}
	defaults := spec.Defaults
	defaults.ProjectID = c.settings.ProjectID
	defaults.Region = c.settings.Region
	req, err := clusterconfig.Build(ctx, tmpl, spec.Form, defaults)
	if err != nil {
		return nil, err
	}

	op, zone, err := c.createWithZoneRetry(ctx, req)
	if err != nil {
		if spawnerrors.IsConflict(err) {
			// Another start won the race
			if record, getErr := c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name); getErr == nil {
				return c.existing(logger, name, record)
			}
		}
		return nil, err
	}
	logger.Info("Cluster creation started", "zone", zone, "operation", op.Name)

	result = &StartResult{
		ClusterName: name,
		Zone:        zone,
		Operation:   op,
		MasterFQDN:  MasterFQDN(name, zone, c.settings.ProjectID),
	}
	if record, getErr := c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name); getErr == nil {
		result.GatewayURL = GatewayURL(record)
	} else {
		logger.V(1).Info("Could not read new cluster endpoints", "error", getErr.Error())
	}
	return result, nil
}

func (c *Controller) existing(logger logr.Logger, name string, record *v1alpha1.ClusterRecord) (*StartResult, error) {
	if record.State == v1alpha1.ClusterStateDeleting {
		return nil, spawnerrors.New(spawnerrors.KindConflict,
			"cluster %s is pending deletion, try again once it is deleted", name)
	}
	logger.Info("Cluster already exists", "state", record.State)
	zone := clusterconfig.ZoneFromURI(record.ZoneURI)
	return &StartResult{
		ClusterName: name,
		Zone:        zone,
		Existing:    true,
		GatewayURL:  GatewayURL(record),
		MasterFQDN:  MasterFQDN(name, zone, c.settings.ProjectID),
	}, nil
}

// createWithZoneRetry submits req, moving to another candidate zone after
// each quota or rate-limit failure. Attempts stay within two zones. Every
// attempt submits its own copy.
func (c *Controller) createWithZoneRetry(
	ctx context.Context, req *v1alpha1.ClusterRequest) (*v1alpha1.OperationHandle, string, error) {
	logger := logf.FromContext(ctx)
	candidates := candidateZones(c.settings.Region, c.settings.ZoneLetters)

	attempt := 0
	zone := clusterconfig.ZoneFromURI(req.Config.GceClusterConfig.ZoneURI)
	var tried []string
	var op *v1alpha1.OperationHandle
	err := retry.OnError(c.settings.CreateBackoff, spawnerrors.IsRetryableCreate, func() error {
		attempt++
		if attempt > 1 {
			next := retryZone(tried, candidates)
			logger.Info("Retrying cluster creation in another zone", "attempt", attempt, "from", zone, "zone", next)
			zone = next
		}
		tried = append(tried, zone)
		var createErr error
		op, createErr = c.client.Create(ctx, withZone(req, zone))
		c.recorder.ObserveCreateAttempt(zone, createErr)
		if createErr != nil {
			logger.Error(createErr, "Cluster creation attempt failed", "attempt", attempt, "zone", zone)
		}
		return createErr
	})
	if err != nil {
		return nil, zone, err
	}
	return op, zone, nil
}

// Stop deletes the cluster. A missing cluster, or one already being
// deleted, is not an error.
func (c *Controller) Stop(ctx context.Context, name string) (err error) {
	logger := logf.FromContext(ctx).WithName("lifecycle").WithValues("clusterName", name)
	defer func(started time.Time) { c.recorder.ObserveOperation("stop", started, err) }(time.Now())

	record, err := c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name)
	if spawnerrors.IsNotFound(err) {
		logger.Info("No cluster to stop")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cluster %s: %w", name, err)
	}
	if record.State == v1alpha1.ClusterStateDeleting {
		logger.Info("Cluster is already being deleted")
		return nil
	}

	logger.Info("Deleting cluster")
	if err := c.client.Delete(ctx, c.settings.ProjectID, c.settings.Region, name); err != nil {
		if spawnerrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete cluster %s: %w", name, err)
	}
	return nil
}

// Poll maps the cluster state to a server health signal. Read failures are
// logged and reported as pending.
func (c *Controller) Poll(ctx context.Context, name string) v1alpha1.PollStatus {
	logger := logf.FromContext(ctx).WithName("lifecycle").WithValues("clusterName", name)

	record, err := c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name)
	if spawnerrors.IsNotFound(err) {
		return v1alpha1.PollStopped
	}
	if err != nil {
		logger.Error(err, "Failed to read cluster state, assuming pending")
		return v1alpha1.PollPending
	}

	status := pollStatus(record.State)
	logger.V(1).Info("Polled cluster", "state", record.State, "status", status.String())
	return status
}

// Cluster returns the current record of a cluster
func (c *Controller) Cluster(ctx context.Context, name string) (*v1alpha1.ClusterRecord, error) {
	return c.client.Get(ctx, c.settings.ProjectID, c.settings.Region, name)
}

func pollStatus(state v1alpha1.ClusterState) v1alpha1.PollStatus {
	switch state {
	case v1alpha1.ClusterStateCreating, v1alpha1.ClusterStateStarting:
		return v1alpha1.PollPending
	case v1alpha1.ClusterStateRunning, v1alpha1.ClusterStateUpdating:
		return v1alpha1.PollRunning
	default:
		return v1alpha1.PollStopped
	}
}

// GatewayURL returns the notebook endpoint advertised by a cluster, if any
func GatewayURL(record *v1alpha1.ClusterRecord) string {
	for _, key := range gatewayEndpoints {
		if url := record.Endpoints[key]; url != "" {
			return url
		}
	}
	return ""
}

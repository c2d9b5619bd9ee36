/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

package progress

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/controlplane"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
)

// DefaultPollInterval is the pause between two operation reads
const DefaultPollInterval = time.Second

// Recorder observes emitted events
type Recorder interface {
	ObserveProgressEvent(event v1alpha1.ProgressEvent)
}

type noopRecorder struct{}

func (noopRecorder) ObserveProgressEvent(v1alpha1.ProgressEvent) {}

// Options configure a Reporter
type Options struct {
	ProjectID string
	Region    string
	// Interval between two operation reads; zero means DefaultPollInterval
	Interval time.Duration
	// Methods is the milestone allow-list; empty counts every entry of the cluster
	Methods []string
}

// Reporter follows a create operation and records its progress
type Reporter struct {
	client   controlplane.Client
	sink     logsink.Sink
	registry *Registry
	options  Options
	recorder Recorder
}

// NewReporter creates a new Reporter. recorder may be nil.
func NewReporter(client controlplane.Client, sink logsink.Sink, registry *Registry, options Options, recorder Recorder) *Reporter {
	if options.Interval <= 0 {
		options.Interval = DefaultPollInterval
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Reporter{
		client:   client,
		sink:     sink,
		registry: registry,
		options:  options,
		recorder: recorder,
	}
}

// Registry returns the ledgers written by the reporter
func (r *Reporter) Registry() *Registry {
	return r.registry
}

// Begin opens the ledger of a new creation attempt
func (r *Reporter) Begin(op *v1alpha1.OperationHandle) *Ledger {
	started := op.StartTime
	if started.IsZero() {
		started = time.Now()
	}
	ledger := r.registry.Begin(op.ClusterName, started)
	r.emit(ledger, v1alpha1.ProgressEvent{
		Message: fmt.Sprintf("Creating cluster %s", op.ClusterName),
	})
	return ledger
}

// Run polls op until it is done, emitting an event for each new creation
// milestone found in the logs, then a closing event. It returns when the
// operation is done or ctx is cancelled; the ledger is closed either way.
func (r *Reporter) Run(ctx context.Context, ledger *Ledger, op *v1alpha1.OperationHandle) error {
	logger := logf.FromContext(ctx).WithName("progress").WithValues("clusterName", op.ClusterName)
	ctx = logf.IntoContext(ctx, logger)
	defer ledger.Close()

	err := wait.PollUntilContextCancel(ctx, r.options.Interval, false, func(ctx context.Context) (bool, error) {
		status, err := r.client.GetOperation(ctx, op.Name)
		if err != nil {
			logger.Error(err, "Failed to read operation, will retry", "operation", op.Name)
			return false, nil
		}
		r.collect(ctx, ledger, op)
		if !status.Done {
			return false, nil
		}
		r.finish(ctx, ledger, op, status)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("stopped following operation %s: %w", op.Name, err)
	}
	return nil
}

func (r *Reporter) collect(ctx context.Context, ledger *Ledger, op *v1alpha1.OperationHandle) {
	logger := logf.FromContext(ctx)
	filter := logsink.Filter{
		ClusterName: op.ClusterName,
		ClusterUUID: op.ClusterUUID,
		Methods:     r.options.Methods,
		Since:       ledger.Started(),
	}
	entries, err := r.sink.Query(ctx, []string{"projects/" + r.options.ProjectID}, filter.String())
	if err != nil {
		logger.Error(err, "Failed to query creation logs")
		return
	}
	for _, entry := range entries {
		if event, ok := ledger.Observe(entry); ok {
			r.recorder.ObserveProgressEvent(event)
			logger.V(1).Info("Creation milestone", "method", entry.Method, "progress", event.Progress)
		}
	}
}

func (r *Reporter) finish(ctx context.Context, ledger *Ledger, op *v1alpha1.OperationHandle, status *v1alpha1.OperationStatus) {
	logger := logf.FromContext(ctx)
	if status.Error != "" {
		logger.Info("Cluster creation failed", "error", status.Error)
		r.emit(ledger, v1alpha1.ProgressEvent{
			Progress: FailedProgress,
			Message:  fmt.Sprintf("Cluster creation failed: %s", status.Error),
			Failed:   true,
		})
		return
	}

	record, err := r.client.Get(ctx, r.options.ProjectID, r.options.Region, op.ClusterName)
	if err != nil {
		logger.Error(err, "Failed to confirm cluster state")
		return
	}
	if record.State != v1alpha1.ClusterStateRunning {
		logger.Info("Operation done but cluster is not running", "state", record.State)
		return
	}
	r.emit(ledger, v1alpha1.ProgressEvent{
		Progress: RunningProgress,
		Message:  fmt.Sprintf("Cluster %s is running, starting the notebook server", op.ClusterName),
		Ready:    true,
	})
}

func (r *Reporter) emit(ledger *Ledger, event v1alpha1.ProgressEvent) {
	r.recorder.ObserveProgressEvent(ledger.Emit(event))
}

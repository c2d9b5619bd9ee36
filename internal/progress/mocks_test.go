package progress

import (
	"context"
	"sync"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/controlplane"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
)

// fakeClient finishes the operation after a number of reads
type fakeClient struct {
	controlplane.Client
	mu        sync.Mutex
	reads     int
	doneAfter int
	opError   string
	state     v1alpha1.ClusterState
}

func (f *fakeClient) GetOperation(_ context.Context, _ string) (*v1alpha1.OperationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads < f.doneAfter {
		return &v1alpha1.OperationStatus{}, nil
	}
	return &v1alpha1.OperationStatus{Done: true, Error: f.opError}, nil
}

func (f *fakeClient) Get(_ context.Context, _, _, name string) (*v1alpha1.ClusterRecord, error) {
	if f.state == v1alpha1.ClusterStateAbsent {
		return nil, spawnerrors.New(spawnerrors.KindNotFound, "cluster %s not found", name)
	}
	return &v1alpha1.ClusterRecord{Name: name, State: f.state}, nil
}

// fakeSink reveals one more entry on each query and records the filters
type fakeSink struct {
	mu      sync.Mutex
	entries []logsink.Entry
	shown   int
	filters []string
}

func (f *fakeSink) Query(_ context.Context, _ []string, filter string) ([]logsink.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.shown < len(f.entries) {
		f.shown++
	}
	return append([]logsink.Entry(nil), f.entries[:f.shown]...), nil
}

type countingRecorder struct {
	mu     sync.Mutex
	events []v1alpha1.ProgressEvent
}

func (c *countingRecorder) ObserveProgressEvent(event v1alpha1.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

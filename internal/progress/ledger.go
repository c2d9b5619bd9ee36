// Package progress turns the creation milestones logged by a cluster into a
// replayable stream of progress events.
package progress

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	"github.com/jupyter-infra/dataproc-hub/internal/logsink"
)

const (
	// logProgressCeiling caps the progress reached through log entries
	logProgressCeiling = 90
	// RunningProgress is reported once the cluster is confirmed running
	RunningProgress = 95
	// FailedProgress is reported when creation fails
	FailedProgress = 100

	subscriberBuffer = 16
)

// Ledger is the progress record of one creation attempt. Events are only
// appended; percent never decreases.
type Ledger struct {
	mu      sync.Mutex
	cluster string
	started time.Time
	percent int
	seen    sets.Set[string]
	events  []v1alpha1.ProgressEvent
	changed chan struct{}
	closed  bool
}

func newLedger(cluster string, started time.Time) *Ledger {
	return &Ledger{
		cluster: cluster,
		started: started,
		seen:    sets.New[string](),
		changed: make(chan struct{}),
	}
}

// Cluster returns the name of the cluster being tracked
func (l *Ledger) Cluster() string {
	return l.cluster
}

// Started returns the time log queries are scoped from
func (l *Ledger) Started() time.Time {
	return l.started
}

// Percent returns the current progress
func (l *Ledger) Percent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.percent
}

// Events returns a copy of the emitted events
func (l *Ledger) Events() []v1alpha1.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]v1alpha1.ProgressEvent(nil), l.events...)
}

// Closed returns true once the attempt reached a terminal state
func (l *Ledger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Emit appends an event. Progress below the current percent is raised to it.
func (l *Ledger) Emit(event v1alpha1.ProgressEvent) v1alpha1.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emitLocked(event)
}

func (l *Ledger) emitLocked(event v1alpha1.ProgressEvent) v1alpha1.ProgressEvent {
	if l.closed {
		return event
	}
	if event.Progress < l.percent {
		event.Progress = l.percent
	}
	l.percent = event.Progress
	l.events = append(l.events, event)
	close(l.changed)
	l.changed = make(chan struct{})
	return event
}

// Observe emits an event for a log entry not seen before. It returns false
// for an entry already recorded.
func (l *Ledger) Observe(entry logsink.Entry) (v1alpha1.ProgressEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.seen.Has(entry.InsertID) {
		return v1alpha1.ProgressEvent{}, false
	}
	l.seen.Insert(entry.InsertID)

	message := entry.Message
	if message == "" {
		message = entry.Method
	}
	return l.emitLocked(v1alpha1.ProgressEvent{
		Progress: l.percent + logStep(l.percent),
		Message:  message,
	}), true
}

// logStep is ceil((90 - p) / 4)
func logStep(percent int) int {
	remaining := logProgressCeiling - percent
	if remaining <= 0 {
		return 0
	}
	return (remaining + 3) / 4
}

// Close marks the attempt terminal and ends every subscription once it has
// delivered the remaining events.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Ledger) snapshot(from int) ([]v1alpha1.ProgressEvent, <-chan struct{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending []v1alpha1.ProgressEvent
	if from < len(l.events) {
		pending = append(pending, l.events[from:]...)
	}
	return pending, l.changed, l.closed
}

// Subscribe replays the events from index from onwards, then delivers new
// events as they are emitted. The channel is closed when the ledger is
// closed and drained, or when ctx is done.
func (l *Ledger) Subscribe(ctx context.Context, from int) <-chan v1alpha1.ProgressEvent {
	if from < 0 {
		from = 0
	}
	out := make(chan v1alpha1.ProgressEvent, subscriberBuffer)
	go func() {
		defer close(out)
		next := from
		for {
			pending, changed, closed := l.snapshot(next)
			for _, event := range pending {
				select {
				case out <- event:
					next++
				case <-ctx.Done():
					return
				}
			}
			if len(pending) > 0 {
				continue
			}
			if closed {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Registry keeps the ledger of each cluster so observers can attach late
type Registry struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]*Ledger)}
}

// Begin starts a fresh ledger for a new attempt on cluster, closing the
// previous one.
func (r *Registry) Begin(cluster string, started time.Time) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if previous, ok := r.ledgers[cluster]; ok {
		previous.Close()
	}
	ledger := newLedger(cluster, started)
	r.ledgers[cluster] = ledger
	return ledger
}

// Get returns the current ledger of cluster
func (r *Registry) Get(cluster string) (*Ledger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ledger, ok := r.ledgers[cluster]
	return ledger, ok
}

// Forget drops the ledger of cluster
func (r *Registry) Forget(cluster string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ledger, ok := r.ledgers[cluster]; ok {
		ledger.Close()
		delete(r.ledgers, cluster)
	}
}

package v1alpha1

import "time"

// ClusterState is the state reported by the control plane for a cluster
type ClusterState string

const (
	// ClusterStateAbsent is used locally when the control plane has no cluster
	ClusterStateAbsent   ClusterState = ""
	ClusterStateUnknown  ClusterState = "UNKNOWN"
	ClusterStateCreating ClusterState = "CREATING"
	ClusterStateRunning  ClusterState = "RUNNING"
	ClusterStateError    ClusterState = "ERROR"
	ClusterStateDeleting ClusterState = "DELETING"
	ClusterStateUpdating ClusterState = "UPDATING"
	ClusterStateStopping ClusterState = "STOPPING"
	ClusterStateStopped  ClusterState = "STOPPED"
	ClusterStateStarting ClusterState = "STARTING"
)

// ClusterRecord is what the control plane returns for an existing cluster
type ClusterRecord struct {
	Name        string
	UUID        string
	State       ClusterState
	StateDetail string
	ZoneURI     string
	// Endpoints maps a logical endpoint name (e.g. "Jupyter") to its gateway URL
	Endpoints map[string]string
	Labels    map[string]string
}

// OperationHandle references a long-running create operation
type OperationHandle struct {
	// Name is the fully qualified operation name
	Name        string
	ClusterName string
	ClusterUUID string
	// StartTime scopes log queries to this attempt
	StartTime time.Time
}

// OperationStatus is the polled state of a long-running operation
type OperationStatus struct {
	Done bool
	// Error is empty unless the operation finished in failure
	Error string
}

// PollStatus is the health signal returned to the host on poll
type PollStatus int

const (
	// PollPending means the cluster is still being created, or the read was inconclusive
	PollPending PollStatus = iota
	// PollRunning means the cluster is up
	PollRunning
	// PollStopped means the server should be considered dead
	PollStopped
)

// Alive returns true if the host should keep waiting on the server
func (p PollStatus) Alive() bool {
	return p != PollStopped
}

func (p PollStatus) String() string {
	switch p {
	case PollPending:
		return "pending"
	case PollRunning:
		return "running"
	default:
		return "stopped"
	}
}

// ProgressEvent is one step of the spawn progress bar
type ProgressEvent struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Failed   bool   `json:"failed,omitempty"`
	Ready    bool   `json:"ready,omitempty"`
}

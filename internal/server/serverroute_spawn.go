package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
	"github.com/jupyter-infra/dataproc-hub/internal/spawner"
)

// maxStartBodyBytes bounds the start request body
const maxStartBodyBytes = 1 << 20

// StartRequest is the body of a start call
type StartRequest struct {
	// Identity is the account granted exclusive use of the cluster
	Identity string `json:"identity,omitempty"`
	// Env and Args are what the hub would pass to a local notebook server
	Env  map[string]string `json:"env,omitempty"`
	Args []string          `json:"args,omitempty"`
	// Form is the submitted spawn form, as multi-valued form data
	Form map[string][]string `json:"form,omitempty"`
}

// StartResponse tells the hub where the notebook server will be reachable
type StartResponse struct {
	ClusterName string `json:"clusterName"`
	Zone        string `json:"zone,omitempty"`
	Existing    bool   `json:"existing"`
	URL         string `json:"url"`
	Operation   string `json:"operation,omitempty"`
}

// StatusResponse is the poll result
type StatusResponse struct {
	Status string `json:"status"`
	Alive  bool   `json:"alive"`
}

func userFromRequest(r *http.Request) spawner.User {
	return spawner.User{
		Name:   r.PathValue("user"),
		Server: r.PathValue("server"),
	}
}

// handleStart starts the user's cluster
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBodyBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid start request: %v", err), http.StatusBadRequest)
		return
	}

	user := userFromRequest(r)
	user.Identity = body.Identity
	user.Env = body.Env
	user.Args = body.Args

	result, err := s.spawner.Start(r.Context(), user, v1alpha1.NewFormSelection(body.Form))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := StartResponse{
		ClusterName: result.ClusterName,
		Zone:        result.Zone,
		Existing:    result.Existing,
		URL:         result.Address(),
	}
	status := http.StatusOK
	if result.Operation != nil {
		response.Operation = result.Operation.Name
		status = http.StatusAccepted
	}
	s.writeJSON(w, r, status, response)
}

// handleStop deletes the user's cluster
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.spawner.Stop(r.Context(), userFromRequest(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus polls the user's cluster
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.spawner.Poll(r.Context(), userFromRequest(r))
	s.writeJSON(w, r, http.StatusOK, StatusResponse{Status: status.String(), Alive: status.Alive()})
}

// handleProgress streams creation progress as server-sent events. Each event
// id is its index, so a client resumes with ?from=<last id + 1>.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	logger := logf.FromContext(r.Context())

	from := 0
	if value := r.URL.Query().Get("from"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid from %q", value), http.StatusBadRequest)
			return
		}
		from = n
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := s.spawner.Progress(r.Context(), userFromRequest(r), from)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	index := from
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error(err, "Failed to encode progress event")
			return
		}
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", index, data); err != nil {
			logger.V(1).Info("Progress stream closed by client", "error", err.Error())
			return
		}
		flusher.Flush()
		index++
	}
}

// writeError maps an engine error to a status code
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logf.FromContext(r.Context()).Error(err, "Request failed", "status", status)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch spawnerrors.KindOf(err) {
	case spawnerrors.KindNotFound:
		return http.StatusNotFound
	case spawnerrors.KindValidation, spawnerrors.KindParse, spawnerrors.KindUnknownComponent:
		return http.StatusBadRequest
	case spawnerrors.KindConflict:
		return http.StatusConflict
	case spawnerrors.KindQuota, spawnerrors.KindRateLimit:
		return http.StatusServiceUnavailable
	case spawnerrors.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf.FromContext(r.Context()).Error(err, "Failed to encode response")
	}
}

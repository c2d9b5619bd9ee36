package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logging "google.golang.org/api/logging/v2"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/jupyter-infra/dataproc-hub/internal/gcp"
)

const defaultPageSize = 100

// CloudLoggingSink implements Sink with the Cloud Logging v2 API
type CloudLoggingSink struct {
	service  *logging.Service
	pageSize int64
}

// NewCloudLoggingSink creates a Cloud Logging backed sink
func NewCloudLoggingSink(ctx context.Context, cfg gcp.ClientConfig) (*CloudLoggingSink, error) {
	service, err := logging.NewService(ctx, cfg.Options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	return &CloudLoggingSink{service: service, pageSize: defaultPageSize}, nil
}

// Query lists the entries matching filter, oldest first
func (s *CloudLoggingSink) Query(ctx context.Context, resourceNames []string, filter string) ([]Entry, error) {
	logger := logf.FromContext(ctx).WithName("log-sink")

	req := &logging.ListLogEntriesRequest{
		ResourceNames: resourceNames,
		Filter:        filter,
		OrderBy:       "timestamp asc",
		PageSize:      s.pageSize,
	}
	var entries []Entry
	err := s.service.Entries.List(req).Pages(ctx, func(page *logging.ListLogEntriesResponse) error {
		for _, e := range page.Entries {
			entries = append(entries, toEntry(e))
		}
		return nil
	})
	if err != nil {
		return nil, gcp.ClassifyError(err, "failed to query logs")
	}
	logger.V(1).Info("Queried log entries", "filter", filter, "entries", len(entries))
	return entries, nil
}

type jsonPayload struct {
	Method  string `json:"method"`
	Message string `json:"message"`
}

func toEntry(e *logging.LogEntry) Entry {
	entry := Entry{InsertID: e.InsertId, Message: e.TextPayload}
	if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		entry.Timestamp = ts
	}
	if len(e.JsonPayload) > 0 {
		var payload jsonPayload
		if err := json.Unmarshal(e.JsonPayload, &payload); err == nil {
			entry.Method = payload.Method
			if payload.Message != "" {
				entry.Message = payload.Message
			}
		}
	}
	return entry
}

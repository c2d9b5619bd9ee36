/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package logsink queries the structured logs written by clusters while they
// are created.
package logsink

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MethodField is the payload field holding the method name of an entry
const MethodField = "jsonPayload.method"

// Entry is one structured log entry
type Entry struct {
	InsertID  string
	Method    string
	Message   string
	Timestamp time.Time
}

// Sink runs log queries
type Sink interface {
	Query(ctx context.Context, resourceNames []string, filter string) ([]Entry, error)
}

// Filter selects the creation milestones of one cluster attempt
type Filter struct {
	ClusterName string
	// ClusterUUID correlates entries to one creation operation
	ClusterUUID string
	Methods     []string
	Since       time.Time
}

// String renders the filter in the logging query language
func (f Filter) String() string {
	clauses := []string{
		`resource.type="cloud_dataproc_cluster"`,
		fmt.Sprintf("resource.labels.cluster_name=%q", f.ClusterName),
	}
	if f.ClusterUUID != "" {
		clauses = append(clauses, fmt.Sprintf("resource.labels.cluster_uuid=%q", f.ClusterUUID))
	}
	if len(f.Methods) > 0 {
		quoted := make([]string, len(f.Methods))
		for i, m := range f.Methods {
			quoted[i] = fmt.Sprintf("%q", m)
		}
		clauses = append(clauses, fmt.Sprintf("%s=(%s)", MethodField, strings.Join(quoted, " OR ")))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, fmt.Sprintf("timestamp>=%q", f.Since.UTC().Format(time.RFC3339Nano)))
	}
	return strings.Join(clauses, " AND ")
}

/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package metrics exposes the spawner's Prometheus metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jupyter-infra/dataproc-hub/api/v1alpha1"
	spawnerrors "github.com/jupyter-infra/dataproc-hub/internal/errors"
)

const (
	metricPrefix = "dataproc_hub_"

	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelZone      = "zone"
	LabelKind      = "kind"
	LabelRoute     = "route"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Collector holds all Prometheus metrics
type Collector struct {
	gatherer prometheus.Gatherer

	createAttempts     *prometheus.CounterVec
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	progressEvents     *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// NewCollector creates a collector registered with a fresh registry
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a collector registered with registry
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{
		gatherer: registry,

		createAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cluster_create_attempts_total",
				Help: "Cluster creation attempts by zone and outcome",
			},
			[]string{LabelZone, LabelKind},
		),

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_operations_total",
				Help: "Lifecycle operations by outcome",
			},
			[]string{LabelOperation, LabelStatus},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lifecycle_operation_duration_seconds",
				Help:    "Duration of lifecycle operations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{LabelOperation},
		),

		progressEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "progress_events_total",
				Help: "Progress events emitted to spawn observers",
			},
			[]string{LabelStatus},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests handled by route and status code",
			},
			[]string{LabelRoute, LabelStatus},
		),

		httpRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{LabelRoute},
		),
	}

	registry.MustRegister(
		c.createAttempts,
		c.operationsTotal,
		c.operationDuration,
		c.progressEvents,
		c.httpRequestsTotal,
		c.httpRequestLatency,
	)
	return c
}

// ObserveCreateAttempt counts one cluster creation attempt
func (c *Collector) ObserveCreateAttempt(zone string, err error) {
	kind := StatusSuccess
	if err != nil {
		kind = string(spawnerrors.KindOf(err))
	}
	c.createAttempts.WithLabelValues(zone, kind).Inc()
}

// ObserveOperation records the outcome and duration of a lifecycle operation
func (c *Collector) ObserveOperation(operation string, started time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	c.operationsTotal.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveProgressEvent counts an emitted progress event
func (c *Collector) ObserveProgressEvent(event v1alpha1.ProgressEvent) {
	status := "progress"
	switch {
	case event.Failed:
		status = "failed"
	case event.Ready:
		status = "ready"
	}
	c.progressEvents.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records a served request
func (c *Collector) ObserveHTTPRequest(route string, code int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(route, http.StatusText(code)).Inc()
	c.httpRequestLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler serves the collected metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Package metrics implements ports.MetricsCollector over
// github.com/prometheus/client_golang, registering the three named stage
// fan-out instruments Rockestra emits per request.
package metrics

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// Collector registers and records Rockestra's prometheus instruments. It is
// process-wide, constructed once at bootstrap and shared across requests.
type Collector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New constructs a Collector with the three named stage fan-out instruments
// pre-registered: module latency, module outcomes, and skip reasons.
func New(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	c.registerHistogram("rockestra_stage_fanout_module_latency_ms",
		"Per-module stage fan-out invocation latency in milliseconds.",
		[]string{"flow_name", "stage_name", "module_id", "execution_path"},
		prometheus.ExponentialBuckets(1, 2, 14),
	)
	c.registerCounter("rockestra_stage_fanout_module_outcomes_total",
		"Count of stage fan-out module invocations by terminal outcome kind.",
		[]string{"flow_name", "stage_name", "module_id", "execution_path", "outcome_kind"},
	)
	c.registerCounter("rockestra_stage_fanout_module_skipped_reasons_total",
		"Count of stage fan-out modules skipped by the planner, by reason code.",
		[]string{"flow_name", "stage_name", "module_id", "execution_path", "reason_code"},
	)
	return c
}

func (c *Collector) registerCounter(name, help string, labels []string) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	c.registry.MustRegister(vec)
	c.counters[name] = vec
}

func (c *Collector) registerHistogram(name, help string, labels []string, buckets []float64) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	c.registry.MustRegister(vec)
	c.histograms[name] = vec
}

// Registry exposes the underlying prometheus.Registry for the /metrics HTTP handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) IncCounter(_ context.Context, name string, labels map[string]string) {
	vec, ok := c.counters[name]
	if !ok {
		return
	}
	vec.With(toPromLabels(vec, labels)).Inc()
}

func (c *Collector) ObserveHistogram(_ context.Context, name string, value float64, labels map[string]string) {
	vec, ok := c.histograms[name]
	if !ok {
		return
	}
	vec.With(toPromLabelsHist(vec, labels)).Observe(value)
}

// toPromLabels copies a plain label map into prometheus.Labels unchanged; a
// label declared on the vec but missing from the caller's map is not filled
// in, so With panics on an incomplete label set.
func toPromLabels(vec *prometheus.CounterVec, labels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func toPromLabelsHist(vec *prometheus.HistogramVec, labels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// InstrumentNames returns the registered counter/histogram names, sorted, for
// diagnostics/tests.
func (c *Collector) InstrumentNames() []string {
	names := make([]string, 0, len(c.counters)+len(c.histograms))
	for n := range c.counters {
		names = append(names, n)
	}
	for n := range c.histograms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var _ ports.MetricsCollector = (*Collector)(nil)

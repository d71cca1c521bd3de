// Package metrics - Prometheus collectors for the classification service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvr-ai/tumorclassifier/models"
	"github.com/nvr-ai/tumorclassifier/version"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "tumorclassifier"

	// DefaultPath is where the metrics handler is mounted.
	DefaultPath = "/metrics"
)

// Operation names timed with StartOperation.
const (
	OperationSaveUpload = "save_upload"
	OperationClassify   = "classify"
)

// Config controls the metrics endpoint.
type Config struct {
	// Enable mounts the metrics handler.
	Enable bool `json:"enable" yaml:"enable" mapstructure:"enable"`
	// Path is the URL path of the handler.
	Path string `json:"path" yaml:"path" mapstructure:"path" validate:"omitempty,startswith=/"`
}

// DefaultConfig enables metrics on /metrics.
func DefaultConfig() Config {
	return Config{Enable: true, Path: DefaultPath}
}

// Metrics holds the service collectors registered against one registry.
type Metrics struct {
	registry *prometheus.Registry

	ClassifyRequests  *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	InferenceFailures *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	DemoMode          prometheus.Gauge
	VersionGauge      *prometheus.GaugeVec
}

// New registers the service collectors, plus the Go and process collectors,
// on a fresh registry.
//
// Returns:
//   - *Metrics: The collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		ClassifyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "classify_requests_total",
			Help:      "Counter of classify requests by HTTP status code.",
		}, []string{"code"}),

		InferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "inference_duration_seconds",
			Help:      "Histogram of a single model forward pass.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"model"}),

		InferenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inference_failures_total",
			Help:      "Counter of failed model forward passes.",
		}, []string{"model"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Histogram of request stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		DemoMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "demo_mode",
			Help:      "1 when fixed demo results are served.",
		}),

		VersionGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "version",
			Help:      "Version info of the service.",
		}, []string{"git_version", "git_commit", "platform", "build_time", "go_version"}),
	}

	m.VersionGauge.WithLabelValues(
		version.GitVersion, version.GitCommit, version.Platform, version.BuildTime, version.GoVersion,
	).Set(1)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetDemoMode records the inference mode chosen at startup.
func (m *Metrics) SetDemoMode(demo bool) {
	if demo {
		m.DemoMode.Set(1)
		return
	}
	m.DemoMode.Set(0)
}

// ObserveInference records one model forward pass.
func (m *Metrics) ObserveInference(model models.Name, elapsed time.Duration, err error) {
	m.InferenceDuration.WithLabelValues(string(model)).Observe(elapsed.Seconds())
	if err != nil {
		m.InferenceFailures.WithLabelValues(string(model)).Inc()
	}
}

// StartOperation begins timing a request stage.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (m *Metrics) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		m.OperationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

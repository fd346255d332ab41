package observability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const prometheusNamespace = "checknode"

// probeBuckets spans fast local checks up to a generous probe timeout.
var probeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// PrometheusCollector translates Metric values into Prometheus vectors held
// in a private registry. Vectors are created on first use; a later sample
// with a different label set is dropped rather than re-registered.
type PrometheusCollector struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

// NewPrometheusCollector builds a collector backed by a dedicated Prometheus registry.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}
}

// Collect implements MetricsCollector.
func (c *PrometheusCollector) Collect(metric Metric) {
	if c == nil || metric.Name == "" {
		return
	}
	labels := prometheus.Labels(metric.Labels)
	names := labelKeys(metric.Labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if known, ok := c.labelNames[metric.Name]; ok && !slices.Equal(known, names) {
		return
	}

	switch metric.Type {
	case MetricCounter:
		vec, ok := c.counters[metric.Name]
		if !ok {
			vec = prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: prometheusNamespace,
				Name:      metric.Name,
				Help:      helpText(metric),
			}, names)
			if !c.register(metric.Name, names, vec) {
				return
			}
			c.counters[metric.Name] = vec
		}
		vec.With(labels).Add(max(metric.Value, 0))
	case MetricHistogram:
		vec, ok := c.histograms[metric.Name]
		if !ok {
			opts := prometheus.HistogramOpts{
				Namespace: prometheusNamespace,
				Name:      metric.Name,
				Help:      helpText(metric),
			}
			if metric.Unit == "seconds" {
				opts.Buckets = probeBuckets
			}
			if metric.Unit != "" {
				opts.ConstLabels = prometheus.Labels{"unit": metric.Unit}
			}
			vec = prometheus.NewHistogramVec(opts, names)
			if !c.register(metric.Name, names, vec) {
				return
			}
			c.histograms[metric.Name] = vec
		}
		vec.With(labels).Observe(metric.Value)
	}
}

func (c *PrometheusCollector) register(name string, labelNames []string, col prometheus.Collector) bool {
	if err := c.registry.Register(col); err != nil {
		return false
	}
	c.labelNames[name] = labelNames
	return true
}

// Registry returns the underlying registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (c *PrometheusCollector) WriteTextfile(path string) error {
	if c == nil {
		return errors.New("prometheus collector is nil")
	}
	cleaned := strings.TrimSpace(path)
	if cleaned == "" {
		return errors.New("textfile path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(cleaned, c.registry); err != nil {
		return fmt.Errorf("write textfile %s: %w", cleaned, err)
	}
	return nil
}

func helpText(metric Metric) string {
	if strings.TrimSpace(metric.Description) != "" {
		return metric.Description
	}
	if metric.Unit != "" {
		return metric.Name + " (" + metric.Unit + ")"
	}
	return metric.Name
}

func labelKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

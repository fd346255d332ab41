package observability

// MetricType identifies how a measurement is aggregated.
type MetricType string

const (
	// MetricCounter accumulates monotonically increasing values.
	MetricCounter MetricType = "counter"
	// MetricHistogram records observations into buckets.
	MetricHistogram MetricType = "histogram"
)

// Metric is a single measurement reported by a component.
type Metric struct {
	Name        string
	Type        MetricType
	Value       float64
	Labels      map[string]string
	Description string
	Unit        string
}

// MetricsCollector receives measurements.
type MetricsCollector interface {
	Collect(Metric)
}

// MetricsCollectorFunc adapts a function into a MetricsCollector.
type MetricsCollectorFunc func(Metric)

// Collect implements MetricsCollector.
func (f MetricsCollectorFunc) Collect(m Metric) {
	f(m)
}

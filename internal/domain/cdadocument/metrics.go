package cdadocument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document generation and the registry.
// A nil *Metrics records nothing.
type Metrics struct {
	// Assembly latency by kind
	AssemblyLatency *prometheus.HistogramVec

	// Documents generated by kind
	Generated *prometheus.CounterVec

	// Registry operations by operation and result ("ok", "rejected", "error")
	Operations *prometheus.CounterVec

	// Validation outcomes by result ("valid", "invalid")
	Validations *prometheus.CounterVec

	// Raw text cache lookups by result ("hit", "miss")
	TextCache *prometheus.CounterVec
}

// NewMetrics registers the document metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AssemblyLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cda_assembly_duration_seconds",
			Help:    "Duration of document assembly by kind",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),

		Generated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cda_documents_generated_total",
			Help: "Total documents generated by kind",
		}, []string{"kind"}),

		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cda_registry_operations_total",
			Help: "Total registry operations by operation and result",
		}, []string{"operation", "result"}),

		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cda_validations_total",
			Help: "Total validations by result",
		}, []string{"result"}),

		TextCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cda_text_cache_lookups_total",
			Help: "Raw text cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveAssembly records the duration of one successful assembly.
func (m *Metrics) ObserveAssembly(kind Kind, d time.Duration) {
	if m != nil {
		m.AssemblyLatency.WithLabelValues(kind.String()).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementGenerated(kind Kind) {
	if m != nil {
		m.Generated.WithLabelValues(kind.String()).Inc()
	}
}

// IncrementOperation records the outcome of a registry write.
func (m *Metrics) IncrementOperation(operation, result string) {
	if m != nil {
		m.Operations.WithLabelValues(operation, result).Inc()
	}
}

func (m *Metrics) IncrementValidation(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.Validations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTextCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.TextCache.WithLabelValues(result).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers the generation pipeline. The gin HTTP metrics come from the
// router middleware; these track pipeline outcomes specifically.
type Metrics struct {
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ShapeOnlyTotal     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "img2mesh_generations_total",
			Help: "Completed generation pipelines by type and status.",
		}, []string{"type", "status"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "img2mesh_generation_duration_seconds",
			Help:    "Wall-clock duration of successful generation pipelines.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"type"}),
		ShapeOnlyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "img2mesh_shape_only_total",
			Help: "Successful generations that degraded to an untextured mesh.",
		}),
	}
	reg.MustRegister(m.GenerationsTotal, m.GenerationDuration, m.ShapeOnlyTotal)
	return m
}

func (m *Metrics) ObserveSuccess(generationType string, seconds float64, shapeOnly bool) {
	m.GenerationsTotal.WithLabelValues(generationType, "success").Inc()
	m.GenerationDuration.WithLabelValues(generationType).Observe(seconds)
	if shapeOnly {
		m.ShapeOnlyTotal.Inc()
	}
}

func (m *Metrics) ObserveFailure(generationType string) {
	m.GenerationsTotal.WithLabelValues(generationType, "failure").Inc()
}

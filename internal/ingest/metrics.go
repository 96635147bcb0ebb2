package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	pipelineWeather   = "weather"
	pipelineTelemetry = "telemetry"

	outcomeCreated = "created"
	outcomeExists  = "exists"
)

// Metrics counts invocation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	forwards    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Subsystem: "ingest",
			Name:      "invocations_total",
			Help:      "Pipeline invocations by outcome (created, exists, or the failure kind).",
		}, []string{"pipeline", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weatherdash",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Wall time of one pipeline invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherdash",
			Subsystem: "ingest",
			Name:      "sink_forwards_total",
			Help:      "Telemetry forwards to the downstream sink by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.invocations, m.duration, m.forwards)
	}
	return m
}

func (m *Metrics) observe(pipeline, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(pipeline, outcome).Inc()
	m.duration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
}

func (m *Metrics) forwarded(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.forwards.WithLabelValues(result).Inc()
}

// Package metrics holds the engine's internal Prometheus instrumentation.
// Chart/dashboard publication belongs to the embedding agent; this package
// exposes collectors for a caller-supplied registry only — it never starts
// an HTTP server or exposition endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the struct-of-collectors the engine updates as it runs.
type Metrics struct {
	TrainResultsTotal    *prometheus.CounterVec
	DetectionTicksTotal  prometheus.Counter
	DetectionTickSeconds prometheus.Histogram
	AnomalyEventsTotal   prometheus.Counter
	HostAnomalyRate      *prometheus.GaugeVec
	HostDimensionsActive *prometheus.GaugeVec
}

// New builds every collector and registers it against reg. An
// AlreadyRegisteredError (e.g. a second engine registering against the
// same registry in a test) is not fatal; everything else is a programmer
// error and panics.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TrainResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adengine_train_results_total",
			Help: "Count of Dimension.Train outcomes by result kind.",
		}, []string{"result"}),

		DetectionTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adengine_detection_ticks_total",
			Help: "Count of detection-worker ticks across all hosts.",
		}),

		DetectionTickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "adengine_detection_tick_seconds",
			Help:    "Wall-clock duration of one detection-worker tick.",
			Buckets: prometheus.DefBuckets,
		}),

		AnomalyEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adengine_anomaly_events_total",
			Help: "Count of AnomalyEvent rows appended to the EventStore.",
		}),

		HostAnomalyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adengine_host_anomaly_rate",
			Help: "Current fraction of a host's dimensions with anomaly_bit=1.",
		}, []string{"host_uuid"}),

		HostDimensionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adengine_host_dimensions_active",
			Help: "Current number of dimensions registered on a host.",
		}, []string{"host_uuid"}),
	}

	safeRegister(reg,
		m.TrainResultsTotal,
		m.DetectionTicksTotal,
		m.DetectionTickSeconds,
		m.AnomalyEventsTotal,
		m.HostAnomalyRate,
		m.HostDimensionsActive,
	)

	return m
}

func safeRegister(reg *prometheus.Registry, collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, already := err.(prometheus.AlreadyRegisteredError); already {
				continue
			}
			panic(err)
		}
	}
}

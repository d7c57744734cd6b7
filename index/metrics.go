package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a set of Prometheus metrics describing the instances managed by
// a process index.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Created    prometheus.Counter
	Rehydrated prometheus.Counter
	Passivated prometheus.Counter
	Deleted    prometheus.Counter
	Live       prometheus.Gauge
	ListTime   prometheus.Histogram
}

// NewMetrics returns a new set of metrics registered with r.
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "instances_created_total",
			Help:      "Number of process instances created.",
		}),
		Rehydrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "instances_rehydrated_total",
			Help:      "Number of process instances rebuilt from the journal.",
		}),
		Passivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "instances_passivated_total",
			Help:      "Number of process instances released from memory.",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "instances_deleted_total",
			Help:      "Number of process instances deleted.",
		}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "instances_live",
			Help:      "Number of process instances held in memory, sampled at each retention check.",
		}),
		ListTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bakery",
			Subsystem: "index",
			Name:      "list_duration_seconds",
			Help:      "Time taken to list every process instance.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Created,
		m.Rehydrated,
		m.Passivated,
		m.Deleted,
		m.Live,
		m.ListTime,
	} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) created() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) rehydrated() {
	if m != nil {
		m.Rehydrated.Inc()
	}
}

func (m *Metrics) passivated() {
	if m != nil {
		m.Passivated.Inc()
	}
}

func (m *Metrics) deleted() {
	if m != nil {
		m.Deleted.Inc()
	}
}

func (m *Metrics) live(n int) {
	if m != nil {
		m.Live.Set(float64(n))
	}
}

func (m *Metrics) listed(d time.Duration) {
	if m != nil {
		m.ListTime.Observe(d.Seconds())
	}
}

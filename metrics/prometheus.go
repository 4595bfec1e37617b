// Package metrics exports cache events to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/cachecenter/types"
)

const namespace = "cachecenter"

// Prometheus implements types.Metrics with one counter per event.
type Prometheus struct {
	events *prometheus.CounterVec

	hit, miss, eviction, expire, load prometheus.Counter
}

var _ types.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the cache counters on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "The total number of cache events by kind",
		},
		[]string{"event"},
	)
	if err := reg.Register(events); err != nil {
		return nil, err
	}

	return &Prometheus{
		events:   events,
		hit:      events.WithLabelValues("hit"),
		miss:     events.WithLabelValues("miss"),
		eviction: events.WithLabelValues("eviction"),
		expire:   events.WithLabelValues("expire"),
		load:     events.WithLabelValues("load"),
	}, nil
}

func (p *Prometheus) Hit()      { p.hit.Inc() }
func (p *Prometheus) Miss()     { p.miss.Inc() }
func (p *Prometheus) Eviction() { p.eviction.Inc() }
func (p *Prometheus) Expire()   { p.expire.Inc() }
func (p *Prometheus) Load()     { p.load.Inc() }

// WatchSize registers a gauge that reports size() on every scrape.
func WatchSize(reg prometheus.Registerer, size func() int) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "The number of entries currently held in memory",
		},
		func() float64 { return float64(size()) },
	))
}

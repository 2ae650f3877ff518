// Package metrics exposes the three per-row-of-work counters this
// adapter increments, the way Erigon's storage packages register a
// handful of prometheus counters/gauges rather than rolling custom
// aggregation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters groups the three metrics the adapter maintains. A zero value
// is not usable; construct with NewCounters.
type Counters struct {
	RowsFetched prometheus.Counter
	RowsStored  prometheus.Counter
	RowsCleared prometheus.Counter
}

// NewCounters registers the three counters on reg (or the default
// registerer if reg is nil) and returns them. Registering against a
// private registry (as tests should) avoids cross-test collisions on
// the global default registerer.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		RowsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqllayer_rows_fetched_total",
			Help: "Rows fetched by the storage adapter.",
		}),
		RowsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqllayer_rows_stored_total",
			Help: "Rows stored by the storage adapter.",
		}),
		RowsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqllayer_rows_cleared_total",
			Help: "Rows cleared by the storage adapter.",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(c.RowsFetched, c.RowsStored, c.RowsCleared)
	return c
}

// Package prom exports stats.Metrics through Prometheus.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/policystack/policy/stats"
)

// Adapter implements stats.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	migrations *prometheus.CounterVec
	wouldBlock prometheus.Counter
	resident   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Accesses that found the block resident",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Accesses served from the origin without promotion",
			ConstLabels: constLabels,
		}),
		migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "migrations_total",
				Help:        "Promotions into the cache by whether a resident block was replaced",
				ConstLabels: constLabels,
			},
			[]string{"replaced"},
		),
		wouldBlock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "would_block_total",
			Help:        "Non-blocking accesses refused because a lock was held",
			ConstLabels: constLabels,
		}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resident_blocks",
			Help:        "Number of resident cache blocks",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.migrations, a.wouldBlock, a.resident)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Migrate increments the migration counter labelled by replacement.
func (a *Adapter) Migrate(replaced bool) {
	a.migrations.WithLabelValues(strconv.FormatBool(replaced)).Inc()
}

// WouldBlock increments the would-block counter.
func (a *Adapter) WouldBlock() { a.wouldBlock.Inc() }

// Residency updates the resident-blocks gauge.
func (a *Adapter) Residency(blocks int) { a.resident.Set(float64(blocks)) }

// Compile-time check: ensure Adapter implements stats.Metrics.
var _ stats.Metrics = (*Adapter)(nil)

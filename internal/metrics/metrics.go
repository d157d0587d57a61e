// Package metrics exposes Prometheus collectors for escrow settlements,
// selection arbitration, the auto-release sweep and notification fan-out.
//
// A nil *Collector is valid and records nothing, so services can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	settlements        *prometheus.CounterVec
	settledAmount      *prometheus.CounterVec
	holds              prometheus.Counter
	selectionConflicts prometheus.Counter
	sweepRuns          *prometheus.CounterVec
	sweepBookings      *prometheus.CounterVec
	sweepDuration      prometheus.Histogram
	notifications      *prometheus.CounterVec
	registry           prometheus.Gatherer
}

// NewCollector registers all collectors on reg. Pass prometheus.NewRegistry()
// in tests to avoid clashing with the default registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_settlements_total",
			Help: "Escrow settlements by kind (release, refund) and source",
		}, []string{"kind", "source"}),
		settledAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_settled_amount_kobo_total",
			Help: "Amount moved out of escrow by kind",
		}, []string{"kind"}),
		holds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_holds_total",
			Help: "Escrow holds placed on worker selection",
		}),
		selectionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "selection_conflicts_total",
			Help: "Worker selections rejected because another selection won the job",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auto_release_sweeps_total",
			Help: "Auto-release sweep invocations by outcome (completed, skipped, error)",
		}, []string{"outcome"}),
		sweepBookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auto_release_bookings_total",
			Help: "Bookings handled by the auto-release sweep by action",
		}, []string{"action"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auto_release_sweep_duration_seconds",
			Help:    "Auto-release sweep duration",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by stage (enqueued, enqueue_failed, delivered, delivery_failed)",
		}, []string{"stage"}),
		registry: reg,
	}
	reg.MustRegister(c.settlements, c.settledAmount, c.holds, c.selectionConflicts,
		c.sweepRuns, c.sweepBookings, c.sweepDuration, c.notifications)
	return c
}

func (c *Collector) RecordHold() {
	if c == nil {
		return
	}
	c.holds.Inc()
}

func (c *Collector) RecordSettlement(kind, source string, amount int64) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(kind, source).Inc()
	c.settledAmount.WithLabelValues(kind).Add(float64(amount))
}

func (c *Collector) RecordSelectionConflict() {
	if c == nil {
		return
	}
	c.selectionConflicts.Inc()
}

func (c *Collector) RecordSweep(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.sweepRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		c.sweepDuration.Observe(d.Seconds())
	}
}

func (c *Collector) RecordSweepBooking(action string) {
	if c == nil {
		return
	}
	c.sweepBookings.WithLabelValues(action).Inc()
}

func (c *Collector) RecordNotification(stage string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics records gate occupancy, quota outcomes and reclaimer activity.
type CoreMetrics struct {
	gateActive     prometheus.Gauge
	gateWaiting    prometheus.Gauge
	quotaDecisions *prometheus.CounterVec
	reclaimRuns    *prometheus.CounterVec
	reclaimSeconds *prometheus.HistogramVec
	journalSize    prometheus.Gauge
}

// NewCoreMetrics registers the core metrics on the provided registerer.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	gateActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gate_active_slots",
		Help: "Heavy operations currently holding an admission slot.",
	})
	gateWaiting := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gate_waiting",
		Help: "Callers queued for an admission slot.",
	})
	quotaDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_decisions_total",
		Help: "Quota check outcomes by result.",
	}, []string{"outcome"})
	reclaimRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reclaim_runs_total",
		Help: "Idle reclaimer executions by tier.",
	}, []string{"tier"})
	reclaimSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reclaim_duration_seconds",
		Help:    "Duration of idle reclaimer runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tier"})
	journalSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_entries",
		Help: "Entries currently retained by the usage journal.",
	})
	reg.MustRegister(gateActive, gateWaiting, quotaDecisions, reclaimRuns, reclaimSeconds, journalSize)
	return &CoreMetrics{
		gateActive:     gateActive,
		gateWaiting:    gateWaiting,
		quotaDecisions: quotaDecisions,
		reclaimRuns:    reclaimRuns,
		reclaimSeconds: reclaimSeconds,
		journalSize:    journalSize,
	}
}

// SetGateActive records the number of held admission slots.
func (m *CoreMetrics) SetGateActive(n int) {
	if m == nil || m.gateActive == nil {
		return
	}
	m.gateActive.Set(float64(n))
}

// SetGateWaiting records the number of queued waiters.
func (m *CoreMetrics) SetGateWaiting(n int) {
	if m == nil || m.gateWaiting == nil {
		return
	}
	m.gateWaiting.Set(float64(n))
}

// IncQuotaDecision counts one quota check outcome (allowed, denied, anonymous).
func (m *CoreMetrics) IncQuotaDecision(outcome string) {
	if m == nil || m.quotaDecisions == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.quotaDecisions.WithLabelValues(outcome).Inc()
}

// ObserveReclaim records one reclaimer run for the named tier.
func (m *CoreMetrics) ObserveReclaim(tier string, duration time.Duration) {
	if m == nil || m.reclaimRuns == nil {
		return
	}
	m.reclaimRuns.WithLabelValues(tier).Inc()
	m.reclaimSeconds.WithLabelValues(tier).Observe(duration.Seconds())
}

// SetJournalSize records the retained journal entry count.
func (m *CoreMetrics) SetJournalSize(n int) {
	if m == nil || m.journalSize == nil {
		return
	}
	m.journalSize.Set(float64(n))
}

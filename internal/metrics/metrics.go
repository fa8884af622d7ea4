package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters for booking outcomes and refresh sweeps.
type EngineMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	slotConflictsTotal  prometheus.Counter
	refreshSweepsTotal  *prometheus.CounterVec
	refreshItemFailures prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome"}),
		slotConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Booking attempts that lost a slot race",
		}),
		refreshSweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Subsystem: "availability",
			Name:      "refresh_sweeps_total",
			Help:      "Availability refresh sweeps by result",
		}, []string{"result"}),
		refreshItemFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Subsystem: "availability",
			Name:      "refresh_item_failures_total",
			Help:      "Per-(practitioner,date) failures during refresh sweeps",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotConflictsTotal, m.refreshSweepsTotal, m.refreshItemFailures)
	return m
}

func (m *EngineMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflictsTotal.Inc()
}

func (m *EngineMetrics) ObserveSweep(result string, itemFailures int) {
	if m == nil {
		return
	}
	m.refreshSweepsTotal.WithLabelValues(result).Inc()
	m.refreshItemFailures.Add(float64(itemFailures))
}

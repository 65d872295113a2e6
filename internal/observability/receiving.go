package observability

import "github.com/prometheus/client_golang/prometheus"

// ReceivingMetrics counts delivery report outcomes and stock movements.
type ReceivingMetrics struct {
	reports   *prometheus.CounterVec
	lines     *prometheus.CounterVec
	units     *prometheus.CounterVec
	conflicts prometheus.Counter
}

// NewReceivingMetrics registers the receiving collectors on registerer.
func NewReceivingMetrics(registerer prometheus.Registerer) *ReceivingMetrics {
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gearstock_delivery_reports_total",
		Help: "Delivery reports by result.",
	}, []string{"result"})
	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gearstock_delivery_report_lines_total",
		Help: "Delivery report lines by report result.",
	}, []string{"result"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gearstock_stock_delta_units_total",
		Help: "Absolute stock units moved by sign of the delta.",
	}, []string{"sign"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gearstock_receiving_conflicts_total",
		Help: "Transaction conflicts hit while applying delivery reports.",
	})
	registerer.MustRegister(reports, lines, units, conflicts)
	return &ReceivingMetrics{reports: reports, lines: lines, units: units, conflicts: conflicts}
}

// ReportApplied records one report outcome.
func (m *ReceivingMetrics) ReportApplied(outcome string, lines int) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
	m.lines.WithLabelValues(outcome).Add(float64(lines))
}

// StockDelta records one committed stock movement.
func (m *ReceivingMetrics) StockDelta(delta int64) {
	if m == nil || delta == 0 {
		return
	}
	if delta > 0 {
		m.units.WithLabelValues("in").Add(float64(delta))
		return
	}
	m.units.WithLabelValues("out").Add(float64(-delta))
}

// Conflict records one serialization conflict.
func (m *ReceivingMetrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

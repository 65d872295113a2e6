package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the status label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the collectors shared by the receiving background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	drift       prometheus.Gauge
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors. A nil registerer selects the
// process-wide default registry, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return buildMetrics(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job. It is safe on a nil receiver.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job, start: time.Now()}
	if m != nil {
		t.start = m.now()
	}
	return t
}

// End records the run as success or failure depending on err and returns err.
func (t *Tracker) End(err error) error {
	if err != nil {
		t.finish(OutcomeFailure)
	} else {
		t.finish(OutcomeSuccess)
	}
	return err
}

// Skip records a run that did no work, e.g. because another worker held the lock.
func (t *Tracker) Skip() {
	t.finish(OutcomeSkipped)
}

func (t *Tracker) finish(outcome string) {
	if t == nil || t.metrics == nil || t.job == "" {
		return
	}
	m := t.metrics
	now := m.now()
	m.runs.WithLabelValues(t.job, outcome).Inc()
	switch outcome {
	case OutcomeFailure:
		m.failures.WithLabelValues(t.job).Inc()
	case OutcomeSuccess:
		m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	}
	if outcome != OutcomeSkipped {
		m.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	}
}

// SetStockDrift publishes the number of drifting items found by the last audit.
func (m *Metrics) SetStockDrift(items int) {
	if m != nil {
		m.drift.Set(float64(items))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gearstock_jobs_total",
			Help: "Background job runs by job and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gearstock_jobs_failures_total",
			Help: "Failed background job runs.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gearstock_job_duration_seconds",
			Help:    "Background job run time.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gearstock_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gearstock_stock_audit_drift_items",
			Help: "Items whose stock balance disagrees with the receiving ledger at the last audit.",
		}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.drift)
	return m
}

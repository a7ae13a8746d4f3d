package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with Prometheus collectors. Registration
// errors are logged and never propagated.
type PrometheusSink struct {
	ticksTotal         prometheus.Counter
	tickErrorsTotal    prometheus.Counter
	runsRequestedTotal prometheus.Counter
	tickDuration       prometheus.Histogram
	tickDrift          prometheus.Histogram

	assetsEvaluated     prometheus.Counter
	partitionsRequested prometheus.Counter
	recordsWritten      prometheus.Counter

	runLaunches      *prometheus.CounterVec
	lastEvaluationID prometheus.Gauge
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initTickMetrics(reg)
	s.initEvaluationMetrics(reg)
	s.initLaunchMetrics(reg)
	return s
}

func (s *PrometheusSink) initTickMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_daemon_ticks_total",
		Help: "Total number of daemon ticks started.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_daemon_tick_errors_total",
		Help: "Total number of ticks abandoned on error.",
	})
	s.runsRequestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_daemon_run_requests_total",
		Help: "Total number of run requests emitted by ticks.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assetsched_daemon_tick_duration_seconds",
		Help:    "Duration of each tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.tickDrift = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assetsched_daemon_tick_drift_seconds",
		Help:    "Difference between actual tick time and expected interval in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	s.register(reg, s.ticksTotal, "assetsched_daemon_ticks_total")
	s.register(reg, s.tickErrorsTotal, "assetsched_daemon_tick_errors_total")
	s.register(reg, s.runsRequestedTotal, "assetsched_daemon_run_requests_total")
	s.register(reg, s.tickDuration, "assetsched_daemon_tick_duration_seconds")
	s.register(reg, s.tickDrift, "assetsched_daemon_tick_drift_seconds")
}

func (s *PrometheusSink) initEvaluationMetrics(reg prometheus.Registerer) {
	s.assetsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_evaluator_assets_evaluated_total",
		Help: "Total number of asset evaluations.",
	})
	s.partitionsRequested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_evaluator_partitions_requested_total",
		Help: "Total number of asset partitions found true.",
	})
	s.recordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assetsched_evaluator_records_written_total",
		Help: "Total number of evaluation records persisted.",
	})

	s.register(reg, s.assetsEvaluated, "assetsched_evaluator_assets_evaluated_total")
	s.register(reg, s.partitionsRequested, "assetsched_evaluator_partitions_requested_total")
	s.register(reg, s.recordsWritten, "assetsched_evaluator_records_written_total")
}

func (s *PrometheusSink) initLaunchMetrics(reg prometheus.Registerer) {
	s.runLaunches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assetsched_launcher_runs_total",
		Help: "Total number of run launches by outcome.",
	}, []string{"outcome"})
	s.lastEvaluationID = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assetsched_cursor_evaluation_id",
		Help: "Evaluation id of the last committed cursor.",
	})

	s.register(reg, s.runLaunches, "assetsched_launcher_runs_total")
	s.register(reg, s.lastEvaluationID, "assetsched_cursor_evaluation_id")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", "name", name, "error", err)
	}
}

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, runsRequested int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.runsRequestedTotal.Add(float64(runsRequested))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TickDrift(drift time.Duration) {
	d := drift.Seconds()
	if d < 0 {
		d = -d
	}
	s.tickDrift.Observe(d)
}

func (s *PrometheusSink) AssetsEvaluated(count int) {
	s.assetsEvaluated.Add(float64(count))
}

func (s *PrometheusSink) PartitionsRequested(count int) {
	s.partitionsRequested.Add(float64(count))
}

func (s *PrometheusSink) EvaluationRecordsWritten(count int) {
	s.recordsWritten.Add(float64(count))
}

func (s *PrometheusSink) RunLaunched(outcome string) {
	s.runLaunches.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) CursorCommitted(evaluationID int64) {
	s.lastEvaluationID.Set(float64(evaluationID))
}

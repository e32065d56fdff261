package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は鍵生成リクエスト処理のPrometheusメトリクス。
type Metrics struct {
	runs        *prometheus.CounterVec
	fulfilled   prometheus.Counter
	runDuration prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewMetrics はメトリクスを生成してregに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keychain_agent",
			Name:      "runs_total",
			Help:      "Number of fulfillment runs by outcome",
		}, []string{"outcome"}),
		fulfilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "keychain_agent",
			Name:      "fulfilled_requests_total",
			Help:      "Number of key requests fulfilled on the ledger",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keychain_agent",
			Name:      "run_duration_seconds",
			Help:      "Duration of fulfillment runs",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "keychain_agent",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that fulfilled at least one request",
		}),
	}
}

// ObserveRun は1回の実行結果を記録する。
func (m *Metrics) ObserveRun(outcome string, fulfilled int, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	if fulfilled > 0 {
		m.fulfilled.Add(float64(fulfilled))
		m.lastSuccess.SetToCurrentTime()
	}
}

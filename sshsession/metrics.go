package sshsession

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pool and session metrics, registered with the default Prometheus registry.
//
// Naming follows Prometheus conventions: netgrip_ prefix, _total suffix for
// counters, _seconds suffix for duration histograms.
var (
	poolSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netgrip_pool_sessions",
		Help: "Currently open pooled SSH sessions.",
	})

	connectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netgrip_pool_connects_total",
		Help: "Connection attempts by result.",
	}, []string{"result"})

	evictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netgrip_pool_evictions_total",
		Help: "Pool evictions by cause.",
	}, []string{"cause"})

	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netgrip_session_jobs_total",
		Help: "Executed command jobs by result.",
	}, []string{"result"})

	jobDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netgrip_session_job_duration_seconds",
		Help:    "Duration of command jobs in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)

func init() {
	prometheus.MustRegister(
		poolSessions,
		connectsTotal,
		evictionsTotal,
		jobsTotal,
		jobDurationSeconds,
	)
}

func observeJob(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobsTotal.WithLabelValues(result).Inc()
	jobDurationSeconds.Observe(d.Seconds())
}

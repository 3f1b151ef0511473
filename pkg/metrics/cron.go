package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records duration and outcome for scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful cron job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed cron job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// Record observes the run duration and bumps the outcome counter for the job.
func (c *CronJobMetrics) Record(job string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	label := normalizeLabel(job)
	if c.duration != nil {
		c.duration.WithLabelValues(label).Observe(duration.Seconds())
	}
	if err != nil {
		if c.failure != nil {
			c.failure.WithLabelValues(label).Inc()
		}
		return
	}
	if c.success != nil {
		c.success.WithLabelValues(label).Inc()
	}
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}

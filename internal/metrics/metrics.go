package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	TicksSkipped   prometheus.Counter
	JobsSent       prometheus.Counter
	JobsFailed     *prometheus.CounterVec
	DeliveryErrors *prometheus.CounterVec
	JobsScheduled  *prometheus.CounterVec
	RuleFires      prometheus.Counter
	TickDuration   prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waflow_worker_ticks_total",
			Help: "Delivery worker ticks that ran",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waflow_worker_ticks_skipped_total",
			Help: "Delivery worker ticks skipped because another tick held the lock",
		}),
		JobsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waflow_jobs_sent_total",
			Help: "Jobs marked SENT and dispatched",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waflow_jobs_failed_total",
			Help: "Jobs marked FAILED",
		}, []string{"reason"}),
		DeliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waflow_delivery_errors_total",
			Help: "Individual send calls that failed",
		}, []string{"part"}),
		JobsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waflow_jobs_scheduled_total",
			Help: "Jobs written to the store",
		}, []string{"kind"}),
		RuleFires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waflow_rule_fires_total",
			Help: "Automation rule fires",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waflow_worker_tick_seconds",
			Help:    "Time spent claiming and handing off due jobs",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Ticks, c.TicksSkipped, c.JobsSent, c.JobsFailed,
		c.DeliveryErrors, c.JobsScheduled, c.RuleFires, c.TickDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

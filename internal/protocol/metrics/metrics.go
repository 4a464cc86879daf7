// Package metrics registers the protocol-level Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	AgentsRegistered prometheus.Counter
	JobsSubmitted    prometheus.Counter
	JobsResolved     *prometheus.CounterVec
	FeedbackGiven    prometheus.Counter
	FeesCollected    prometheus.Counter
	Paused           prometheus.Gauge
}

// New creates and registers all registry metrics.
func New() *Metrics {
	return &Metrics{
		AgentsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentledger_agents_registered_total",
			Help: "Total number of agents registered",
		}),
		JobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentledger_jobs_submitted_total",
			Help: "Total number of job records submitted",
		}),
		JobsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agentledger_jobs_resolved_total",
			Help: "Total number of job records resolved, by terminal status",
		}, []string{"status"}),
		FeedbackGiven: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentledger_feedback_total",
			Help: "Total number of feedback entries submitted",
		}),
		FeesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentledger_fees_collected_total",
			Help: "Total verification fees collected, in fee units",
		}),
		Paused: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentledger_paused",
			Help: "Whether protocol mutations are paused (1) or accepted (0)",
		}),
	}
}

func (m *Metrics) IncrementAgentsRegistered() {
	m.AgentsRegistered.Inc()
}

func (m *Metrics) IncrementJobsSubmitted() {
	m.JobsSubmitted.Inc()
}

func (m *Metrics) IncrementJobsResolved(status string) {
	m.JobsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementFeedbackGiven() {
	m.FeedbackGiven.Inc()
}

func (m *Metrics) AddFeesCollected(amount uint64) {
	m.FeesCollected.Add(float64(amount))
}

func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

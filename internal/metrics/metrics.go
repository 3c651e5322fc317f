// Package metrics exposes poller instrumentation in the Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "energymon"

// Poll results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Recorder receives scheduler events.
type Recorder interface {
	PollSucceeded(source string, points int, took time.Duration, at time.Time)
	PollFailed(source string, took time.Duration)
	PollSkipped(source string)
	SinkWrite(err error)
}

// Metrics is a Recorder backed by its own registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	polls       *prometheus.CounterVec
	points      *prometheus.CounterVec
	sinkWrites  *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Source polls by outcome.",
		}, []string{"source", "result"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Points produced by each source.",
		}, []string{"source"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Batch writes by outcome.",
		}, []string{"result"}),
		pollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent in a single source poll.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(m.polls, m.points, m.sinkWrites, m.pollLatency, m.lastSuccess)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PollSucceeded(source string, points int, took time.Duration, at time.Time) {
	m.polls.WithLabelValues(source, ResultSuccess).Inc()
	m.points.WithLabelValues(source).Add(float64(points))
	m.pollLatency.WithLabelValues(source).Observe(took.Seconds())
	m.lastSuccess.WithLabelValues(source).Set(float64(at.UnixNano()) / 1e9)
}

func (m *Metrics) PollFailed(source string, took time.Duration) {
	m.polls.WithLabelValues(source, ResultError).Inc()
	m.pollLatency.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) PollSkipped(source string) {
	m.polls.WithLabelValues(source, ResultSkipped).Inc()
}

func (m *Metrics) SinkWrite(err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.sinkWrites.WithLabelValues(result).Inc()
}

type nop struct{}

// Nop returns a Recorder that discards everything.
func Nop() Recorder { return nop{} }

func (nop) PollSucceeded(string, int, time.Duration, time.Time) {}
func (nop) PollFailed(string, time.Duration)                    {}
func (nop) PollSkipped(string)                                  {}
func (nop) SinkWrite(error)                                     {}

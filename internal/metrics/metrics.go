// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relay calls by payload kind and outcome (count)",
		},
		[]string{"kind", "outcome"},
	)

	RelayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_duration_ms",
			Help:    "End-to-end relay duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"outcome"},
	)

	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "una_upstream_calls_total",
			Help: "Total number of calls made to the UNA platform (count)",
		},
		[]string{"step", "status"},
	)

	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "una_upstream_call_duration_ms",
			Help:    "Duration of UNA platform calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"step"},
	)

	BroadcastRecipientsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_recipients_total",
			Help: "Total number of broadcast recipients by outcome (count)",
		},
		[]string{"outcome"},
	)

	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of broadcasts by overall status (count)",
		},
		[]string{"status"},
	)

	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_reports_total",
			Help: "Total number of incident report emails by outcome (count)",
		},
		[]string{"outcome"},
	)

	RosterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roster_recipients",
			Help: "Number of recipients in the loaded roster (count)",
		},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RelayRequestsTotal)
		prometheus.MustRegister(RelayDuration)
		prometheus.MustRegister(UpstreamCallsTotal)
		prometheus.MustRegister(UpstreamCallDuration)
		prometheus.MustRegister(BroadcastRecipientsTotal)
		prometheus.MustRegister(BroadcastsTotal)
		prometheus.MustRegister(ReportsTotal)
		prometheus.MustRegister(RosterSize)
	})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveRelay records one finished relay call.
func ObserveRelay(kind string, ok bool, d time.Duration) {
	RelayRequestsTotal.WithLabelValues(kind, outcome(ok)).Inc()
	RelayDuration.WithLabelValues(outcome(ok)).Observe(float64(d.Milliseconds()))
}

// IncBroadcastRecipient counts one recipient of a broadcast.
func IncBroadcastRecipient(ok bool) {
	BroadcastRecipientsTotal.WithLabelValues(outcome(ok)).Inc()
}

// IncBroadcast counts a finished broadcast.
func IncBroadcast(status string) {
	BroadcastsTotal.WithLabelValues(status).Inc()
}

// IncReport counts an incident report delivery attempt.
func IncReport(ok bool) {
	ReportsTotal.WithLabelValues(outcome(ok)).Inc()
}

// SetRosterSize publishes the roster length.
func SetRosterSize(n int) {
	RosterSize.Set(float64(n))
}

// UpstreamObserver feeds traced UNA calls into the upstream collectors.
// Status 0 marks a call that got no response.
type UpstreamObserver struct{}

// ObserveCall implements tracer.Observer.
func (UpstreamObserver) ObserveCall(step string, status int, d time.Duration) {
	UpstreamCallsTotal.WithLabelValues(step, strconv.Itoa(status)).Inc()
	UpstreamCallDuration.WithLabelValues(step).Observe(float64(d.Milliseconds()))
}

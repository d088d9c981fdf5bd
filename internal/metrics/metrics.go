// Package metrics provides Prometheus instrumentation for the Whisper chat
// moderator. It exposes counters for message outcomes, rule violations and
// platform actions, and a histogram for per-message decision latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts inbound messages by result: "clean", "violation"
	// or "skipped" (bots, incomplete events).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_messages_total",
		Help: "Total number of inbound messages processed",
	}, []string{"result"})

	// ViolationsTotal counts violations by rule: "link", "keyword", "rate".
	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_violations_total",
		Help: "Total number of policy violations detected",
	}, []string{"rule"})

	// ActionsTotal counts platform actions by action ("delete", "mute",
	// "ban", "notice") and outcome ("ok", "failed").
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_actions_total",
		Help: "Total number of platform actions requested",
	}, []string{"action", "outcome"})

	// DecisionLatency records the time to process one inbound message,
	// including any platform calls it triggered.
	DecisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_moderation_decision_seconds",
		Help:    "Per-message moderation latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	// PolicyKeywords tracks the current size of the banned keyword list.
	PolicyKeywords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_moderation_policy_keywords",
		Help: "Current number of banned keywords",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ViolationsTotal,
		ActionsTotal,
		DecisionLatency,
		PolicyKeywords,
	)
}

// RecordAction increments ActionsTotal for action with an outcome derived
// from err.
func RecordAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics exposes gateway counters on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentgw_webhook_events_received_total",
			Help: "Webhook requests that reached the admission pipeline",
		},
	)

	eventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgw_webhook_events_rejected_total",
			Help: "Webhook requests rejected by the admission pipeline",
		},
		[]string{"reason"},
	)

	eventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgw_webhook_events_classified_total",
			Help: "Accepted webhook events by classified kind",
		},
		[]string{"kind"},
	)

	workflowSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgw_workflow_steps_total",
			Help: "Workflow step executions by step name and outcome",
		},
		[]string{"step", "outcome"},
	)

	workflowsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgw_workflows_active",
			Help: "Job workflows currently running",
		},
	)
)

// Rejection reasons for EventRejected.
const (
	ReasonOrigin     = "origin_denied"
	ReasonRateLimit  = "rate_limited"
	ReasonSignature  = "bad_signature"
	ReasonStale      = "stale_timestamp"
	ReasonDuplicate  = "duplicate"
	ReasonMalformed  = "malformed"
	ReasonConfig     = "config_error"
	ReasonBodyTooBig = "body_too_large"
	ReasonBadMethod  = "method_not_allowed"
)

func EventReceived()              { eventsReceived.Inc() }
func EventRejected(reason string) { eventsRejected.WithLabelValues(reason).Inc() }
func EventClassified(kind string) { eventsClassified.WithLabelValues(kind).Inc() }

func WorkflowStep(step, outcome string) { workflowSteps.WithLabelValues(step, outcome).Inc() }
func WorkflowStarted()                  { workflowsActive.Inc() }
func WorkflowFinished()                 { workflowsActive.Dec() }

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

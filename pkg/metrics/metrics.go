package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	transcribeOrchestrator = "transcribe_orchestrator"

	submissionsTotal         = "submissions_total"
	notificationsTotal       = "notifications_total"
	batchItemsPublishedTotal = "batch_items_published_total"
	batchItemUpdateFailures  = "batch_item_update_failures_total"

	// Labels
	outcomeLabel = "outcome"
	stateLabel     = "state"
	componentLabel = "component"
)

// Submission outcomes.
const (
	SubmissionSubmitted      = "submitted"
	SubmissionShortCircuited = "short_circuited"
	SubmissionFailed         = "failed"
)

// Notification outcomes.
const (
	NotificationIgnored        = "ignored"
	NotificationStale          = "stale"
	NotificationResumedSuccess = "resumed_success"
	NotificationResumedFailure = "resumed_failure"
	NotificationError          = "error"
)

// Components updating batch rows.
const (
	ComponentWorker     = "worker"
	ComponentDispatcher = "dispatcher"
)

// Publish states.
const (
	PublishOK     = "ok"
	PublishFailed = "failed"
)

/**
* Metrics definition
**/
var submissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcribeOrchestrator,
		Name:      submissionsTotal,
		Help:      "number of submission attempts by outcome",
	},
	[]string{outcomeLabel},
)

var notificationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcribeOrchestrator,
		Name:      notificationsTotal,
		Help:      "number of runner notifications by outcome",
	},
	[]string{outcomeLabel},
)

var batchItemsPublishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcribeOrchestrator,
		Name:      batchItemsPublishedTotal,
		Help:      "number of batch items sent to the work queue",
	},
	[]string{stateLabel},
)

// Each increment is a batch row left in its previous state.
var batchItemUpdateFailuresMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: transcribeOrchestrator,
		Name:      batchItemUpdateFailures,
		Help:      "number of batch item state updates that failed",
	},
	[]string{componentLabel, stateLabel},
)

func IncreaseSubmissionsTotalMetric(outcome string) {
	submissionsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseNotificationsTotalMetric(outcome string) {
	notificationsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func AddBatchItemsPublishedMetric(state string, count int) {
	if count <= 0 {
		return
	}
	batchItemsPublishedTotalMetric.With(prometheus.Labels{stateLabel: state}).Add(float64(count))
}

func IncreaseBatchItemUpdateFailuresMetric(component, state string) {
	batchItemUpdateFailuresMetric.With(prometheus.Labels{componentLabel: component, stateLabel: state}).Inc()
}

type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(submissionsTotalMetric)
	prometheus.MustRegister(notificationsTotalMetric)
	prometheus.MustRegister(batchItemsPublishedTotalMetric)
	prometheus.MustRegister(batchItemUpdateFailuresMetric)
	prometheus.MustRegister(UniqueRequestersPerWeek.counter)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions by outcome: sent, method_error, config_error,
	// upstream_error, internal_error.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbackd_submissions_total",
			Help: "Feedback submissions by outcome",
		},
		[]string{"outcome"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedbackd_llm_call_duration_seconds",
			Help:    "Classification call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "status"},
	)

	ClassificationFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedbackd_classification_fallback_total",
			Help: "Classifications replaced by the default because the model output was not valid JSON",
		},
	)

	ContractViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedbackd_classification_contract_violations_total",
			Help: "Parsed classifications that used unknown labels or keys",
		},
	)

	MailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedbackd_mail_send_total",
			Help: "Mail dispatch attempts by provider and status",
		},
		[]string{"provider", "status"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordLLMCall records one classification call.
func RecordLLMCall(provider string, err error, duration time.Duration) {
	LLMCallDuration.WithLabelValues(provider, status(err)).Observe(duration.Seconds())
}

// RecordMailSend records one mail dispatch.
func RecordMailSend(provider string, err error) {
	MailSendTotal.WithLabelValues(provider, status(err)).Inc()
}

// RecordSubmission records the final outcome of one request.
func RecordSubmission(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}

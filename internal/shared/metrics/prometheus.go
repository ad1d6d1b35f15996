package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	triageAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_assessments_total",
			Help: "Total number of triage assessments by severity tier",
		},
		[]string{"tier", "action"},
	)

	inferenceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_inference_fallbacks_total",
			Help: "Total number of triage calls that fell back to rule-based output",
		},
	)

	casesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_created_total",
			Help: "Total number of cases created",
		},
		[]string{"priority"},
	)

	casesStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_status_changed_total",
			Help: "Total number of case status changes",
		},
		[]string{"from_status", "to_status"},
	)

	followupsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followups_scheduled_total",
			Help: "Total number of follow-ups scheduled",
		},
		[]string{"type", "priority"},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_reminders_sent_total",
			Help: "Total number of follow-up reminders dispatched",
		},
		[]string{"priority"},
	)

	escalationsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "followup_escalations_total",
			Help: "Total number of escalation events emitted for overdue critical follow-ups",
		},
	)

	schedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Duration of follow-up scheduler passes",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	schedulerTicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_skipped_total",
			Help: "Scheduler passes skipped because the previous pass was still running",
		},
	)

	notificationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_outcomes_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"template", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordTriageAssessment records a completed triage assessment
func RecordTriageAssessment(tier, action string) {
	triageAssessments.WithLabelValues(tier, action).Inc()
}

// RecordInferenceFallback records a silent fallback to rule-based triage
func RecordInferenceFallback() {
	inferenceFallbacks.Inc()
}

// RecordCaseCreated records a case creation
func RecordCaseCreated(priority string) {
	casesCreated.WithLabelValues(priority).Inc()
}

// RecordCaseStatusChange records a case status change
func RecordCaseStatusChange(fromStatus, toStatus string) {
	casesStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordFollowupScheduled records a scheduled follow-up
func RecordFollowupScheduled(followupType, priority string) {
	followupsScheduled.WithLabelValues(followupType, priority).Inc()
}

// RecordReminderSent records a dispatched reminder
func RecordReminderSent(priority string) {
	remindersSent.WithLabelValues(priority).Inc()
}

// RecordEscalation records an emitted escalation event
func RecordEscalation() {
	escalationsEmitted.Inc()
}

// RecordSchedulerTick records the duration of a scheduler pass
func RecordSchedulerTick(duration time.Duration) {
	schedulerTickDuration.Observe(duration.Seconds())
}

// RecordSchedulerTickSkipped records an overlapping pass that was skipped
func RecordSchedulerTickSkipped() {
	schedulerTicksSkipped.Inc()
}

// RecordNotificationOutcome records a dispatch outcome
func RecordNotificationOutcome(template string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	notificationOutcomes.WithLabelValues(template, outcome).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the exam session controller.
type Metrics struct {
	// Session metrics
	SessionsCreated prometheus.Counter
	SessionsResumed prometheus.Counter
	SessionFailures prometheus.Counter

	// Question metrics
	QuestionsFetched  prometheus.Counter
	QuestionsReplayed prometheus.Counter
	FetchFailures     prometheus.Counter
	StuckRetries      prometheus.Counter

	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingDuration prometheus.Histogram
	VoiceLatched      prometheus.Counter

	// Upload metrics
	UploadsTotal       prometheus.Counter
	UploadsFailed      prometheus.Counter
	UploadDuration     prometheus.Histogram
	SilentPlaceholders prometheus.Counter

	// Report metrics
	ReportsSubmitted prometheus.Counter
	ReportFailures   prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_sessions_created_total",
			Help: "Total number of exam sessions created",
		}),
		SessionsResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_sessions_resumed_total",
			Help: "Total number of exam sessions resumed from the persisted map",
		}),
		SessionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_session_failures_total",
			Help: "Total number of failed session creation attempts",
		}),

		QuestionsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_questions_fetched_total",
			Help: "Total number of questions fetched from the backend",
		}),
		QuestionsReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_questions_replayed_total",
			Help: "Total number of questions replayed from local history",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_question_fetch_failures_total",
			Help: "Total number of failed question fetches",
		}),
		StuckRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_stuck_question_retries_total",
			Help: "Total number of stuck-question placeholder retries",
		}),

		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cogscreen_recording_duration_seconds",
			Help:    "Duration of captured recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		VoiceLatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_voice_onsets_latched_total",
			Help: "Total number of recordings with a latched voice onset",
		}),

		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_uploads_total",
			Help: "Total number of response uploads attempted",
		}),
		UploadsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_uploads_failed_total",
			Help: "Total number of failed response uploads",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cogscreen_upload_duration_seconds",
			Help:    "Time spent uploading responses",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.5 minutes
		}),
		SilentPlaceholders: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_silent_placeholders_total",
			Help: "Total number of synthesized silent placeholder uploads",
		}),

		ReportsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_reports_submitted_total",
			Help: "Total number of report submissions",
		}),
		ReportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cogscreen_report_failures_total",
			Help: "Total number of failed report submissions",
		}),
	}
}

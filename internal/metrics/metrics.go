package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote processing API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_api_requests_total",
			Help: "Total number of requests sent to the processing service",
		},
		[]string{"operation", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subject_focus_api_request_duration_seconds",
			Help:    "Processing service request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120, 600},
		},
		[]string{"operation"},
	)

	APIRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_api_requests_in_flight",
			Help: "Number of processing service requests currently outstanding",
		},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_api_retries_total",
			Help: "Total number of retried processing service requests",
		},
		[]string{"operation"},
	)
)

// Frame resource metrics
var (
	FrameHandlesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_frame_handles_live",
			Help: "Number of frame handles acquired and not yet released",
		},
	)

	FrameHandlesAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_focus_frame_handles_acquired_total",
			Help: "Total number of frame handles acquired",
		},
	)

	FrameHandlesReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_focus_frame_handles_released_total",
			Help: "Total number of frame handles released",
		},
	)

	FrameBytesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_frame_bytes_live",
			Help: "Encoded bytes held by live frame handles",
		},
	)

	FrameFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_frame_fetches_total",
			Help: "Total number of frame fetches by mode and outcome",
		},
		[]string{"mode", "result"}, // mode: interactive, playback; result: applied, stale, error
	)
)

// Playback metrics
var (
	PlaybackActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_playback_active",
			Help: "Whether the playback clock is running (1 = playing, 0 = paused)",
		},
	)

	PlaybackTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_playback_ticks_total",
			Help: "Total number of playback clock ticks by outcome",
		},
		[]string{"result"}, // advanced, ended, ignored
	)
)

// Selection metrics
var (
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_selections_total",
			Help: "Total number of subject selections by outcome",
		},
		[]string{"result"}, // locked, miss, stale, error
	)
)

// Render and export metrics
var (
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_renders_total",
			Help: "Total number of full renders by status",
		},
		[]string{"status"}, // success, rejected, failed, precondition
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subject_focus_render_duration_seconds",
			Help:    "Full render duration in seconds, including download",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	ExportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_focus_export_bytes_total",
			Help: "Total bytes of rendered video written to the download directory",
		},
	)
)

// Session lifecycle metrics
var (
	SessionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subject_focus_sessions_opened_total",
			Help: "Total number of sessions created by upload",
		},
	)

	SessionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_sessions_closed_total",
			Help: "Total number of sessions torn down by reason",
		},
		[]string{"reason"}, // removed, closed, expired
	)

	SessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_session_active",
			Help: "Whether a session is currently loaded (1 = loaded, 0 = empty)",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after a retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Journal metrics
var (
	JournalQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_journal_queries_total",
			Help: "Total number of journal queries",
		},
		[]string{"operation", "status"},
	)

	JournalQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subject_focus_journal_query_duration_seconds",
			Help:    "Journal query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Control surface HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subject_focus_http_requests_total",
			Help: "Total number of control surface HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subject_focus_http_request_duration_seconds",
			Help:    "Control surface HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subject_focus_http_requests_in_flight",
			Help: "Number of control surface HTTP requests being served",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subject_focus_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

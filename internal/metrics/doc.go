// Package metrics provides Prometheus instrumentation for the subject-focus client.
//
// All metrics are prefixed with "subject_focus_" and registered with the
// default registry through promauto, so importing the package is enough to
// expose them on the metrics server's /metrics endpoint.
//
// # Metric Categories
//
// ## Processing Service Metrics
//
//   - APIRequestsTotal: Counter of requests by operation and status
//   - APIRequestDuration: Histogram of request duration by operation
//   - APIRequestsInFlight: Gauge of outstanding requests
//   - APIRetriesTotal: Counter of retried requests by operation
//
// ## Frame Metrics
//
// The frame handle gauges are the leak detector for the resource manager:
// with one video loaded and nothing in flight, FrameHandlesLive is 1.
//
//   - FrameHandlesLive, FrameBytesLive: Gauges of live handles and their size
//   - FrameHandlesAcquired, FrameHandlesReleased: Counters
//   - FrameFetchesTotal: Counter by mode (interactive, playback) and result
//     (applied, stale, error)
//
// ## Playback, Selection, Render
//
//   - PlaybackActive, PlaybackTicksTotal
//   - SelectionsTotal: locked, miss, stale, error
//   - RendersTotal, RenderDuration, ExportBytesTotal
//
// ## Supporting Metrics
//
//   - SessionsOpenedTotal, SessionsClosedTotal, SessionActive
//   - FilesystemRetry*: download directory writes
//   - JournalQuery*: sqlite journal
//   - HTTPRequests*: local control surface
//
// Call InitializeMetrics once at startup so every label combination is
// present from the first scrape.
package metrics

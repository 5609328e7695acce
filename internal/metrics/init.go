package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Processing service operations ---
	for _, op := range []string{"upload", "frame", "select", "reset", "render", "download", "close", "health"} {
		for _, status := range []string{"success", "error", "network_error"} {
			APIRequestsTotal.WithLabelValues(op, status)
		}
		APIRequestDuration.WithLabelValues(op)
		APIRetriesTotal.WithLabelValues(op)
	}

	// --- Frame fetches ---
	for _, mode := range []string{"interactive", "playback"} {
		for _, result := range []string{"applied", "stale", "error"} {
			FrameFetchesTotal.WithLabelValues(mode, result)
		}
	}

	for _, result := range []string{"advanced", "ended", "ignored"} {
		PlaybackTicksTotal.WithLabelValues(result)
	}

	for _, result := range []string{"locked", "miss", "stale", "error"} {
		SelectionsTotal.WithLabelValues(result)
	}

	for _, status := range []string{"success", "rejected", "failed", "precondition"} {
		RendersTotal.WithLabelValues(status)
	}

	for _, reason := range []string{"removed", "closed", "expired"} {
		SessionsClosedTotal.WithLabelValues(reason)
	}

	for _, op := range []string{"mkdir", "create", "rename"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, op := range []string{"initialize_schema", "session_opened", "session_closed", "record_render", "open_sessions", "sessions", "renders"} {
		JournalQueryTotal.WithLabelValues(op, "success")
		JournalQueryTotal.WithLabelValues(op, "error")
		JournalQueryDuration.WithLabelValues(op)
	}
}

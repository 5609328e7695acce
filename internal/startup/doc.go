// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - FOCUS_API_URL: Processing service base URL (default: http://localhost:8000)
//   - CONTROL_PORT: Local control server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - DOWNLOAD_DIR: Where rendered videos are saved (default: ./downloads)
//   - DATABASE_DIR: Session journal directory (default: ./data)
//   - PLAYBACK_INTERVAL: Playback cadence as Go duration (default: 100ms)
//   - REQUEST_TIMEOUT: Per-request timeout for short calls (default: 30s)
//   - RENDER_TIMEOUT: Bound on a full render, 0 for none (default: 30m)
//   - RETRY_MAX: Retries for idempotent calls (default: 3)
//   - CLOSE_ON_REMOVE: Close the server-side session on remove (default: true)
//   - FRAME_DOWNSCALE, FRAME_INFER_EVERY, FRAME_BLUR_KSIZE, FRAME_FEATHER_PX,
//     FRAME_OUTLINE, FRAME_JPG_QUALITY: Preview frame options
//   - RENDER_DOWNSCALE (0 for source resolution), RENDER_BLUR_KSIZE,
//     RENDER_FEATHER_PX, RENDER_OUTLINE: Full render options
//   - LOG_HTTP_REQUESTS: Log control server requests (default: false)
//   - LOG_LEVEL / DEBUG: Logging level, read by the logging package
//
// The download directory is required and must be writable. The journal is
// disabled, with a warning, when its directory is not writable.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup

package startup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/journal"
	"subject-focus/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	APIURL         string
	ControlPort    string
	MetricsPort    string
	MetricsEnabled bool
	DownloadDir    string
	DatabaseDir    string

	PlaybackInterval time.Duration
	RequestTimeout   time.Duration
	RenderTimeout    time.Duration
	RetryMax         int
	CloseOnRemove    bool

	Frame  apiclient.FrameOptions
	Render apiclient.RenderOptions

	LogHTTPRequests bool

	// Derived paths
	DatabasePath string

	// JournalEnabled is false when the database directory is not writable.
	JournalEnabled bool
}

// RetryPolicy returns the client retry policy for RetryMax.
func (c *Config) RetryPolicy() apiclient.Policy {
	p := apiclient.DefaultPolicy()
	p.MaxRetries = c.RetryMax
	return p
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := loadFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Download directory (absolute): %s", config.DownloadDir)
	logging.Info("  Database directory (absolute): %s", config.DatabaseDir)

	if err := ensureDirectory(config.DownloadDir, "download"); err != nil {
		return nil, fmt.Errorf("download directory error: %w", err)
	}
	if err := testWriteAccess(config.DownloadDir); err != nil {
		return nil, fmt.Errorf("download directory is not writable (required for rendered videos): %w", err)
	}
	logging.Info("  [OK] Download directory is writable")

	config.JournalEnabled = setupOptionalDir(config.DatabaseDir, "journal")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Downloads:   ENABLED (required)")
	logging.Info("    Journal:     %s", enabledString(config.JournalEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// loadFromEnv reads and validates every variable without touching the
// filesystem. Unparseable durations and numbers fall back to their default
// with a warning; values that parse but make no sense are errors.
func loadFromEnv() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	frameDefaults := apiclient.DefaultFrameOptions()
	renderDefaults := apiclient.DefaultRenderOptions()

	config := &Config{
		APIURL:           strings.TrimRight(getEnv("FOCUS_API_URL", "http://localhost:8000"), "/"),
		ControlPort:      getEnv("CONTROL_PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		DownloadDir:      getEnv("DOWNLOAD_DIR", "./downloads"),
		DatabaseDir:      getEnv("DATABASE_DIR", "./data"),
		PlaybackInterval: getEnvDuration("PLAYBACK_INTERVAL", 100*time.Millisecond),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RenderTimeout:    getEnvDuration("RENDER_TIMEOUT", 30*time.Minute),
		RetryMax:         getEnvInt("RETRY_MAX", 3),
		CloseOnRemove:    getEnvBool("CLOSE_ON_REMOVE", true),
		Frame: apiclient.FrameOptions{
			Downscale:  getEnvInt("FRAME_DOWNSCALE", frameDefaults.Downscale),
			InferEvery: getEnvInt("FRAME_INFER_EVERY", frameDefaults.InferEvery),
			BlurKSize:  getEnvInt("FRAME_BLUR_KSIZE", frameDefaults.BlurKSize),
			FeatherPx:  getEnvInt("FRAME_FEATHER_PX", frameDefaults.FeatherPx),
			Outline:    getEnvBool("FRAME_OUTLINE", false),
			JPGQuality: getEnvInt("FRAME_JPG_QUALITY", frameDefaults.JPGQuality),
		},
		Render: apiclient.RenderOptions{
			BlurKSize:  getEnvInt("RENDER_BLUR_KSIZE", renderDefaults.BlurKSize),
			FeatherPx:  getEnvInt("RENDER_FEATHER_PX", renderDefaults.FeatherPx),
			Outline:    getEnvBool("RENDER_OUTLINE", false),
			StartFrame: 0,
			EndFrame:   apiclient.DefaultRenderEndFrame,
		},
		LogHTTPRequests: getEnvBool("LOG_HTTP_REQUESTS", false),
	}

	// RENDER_DOWNSCALE=0 renders at source resolution.
	if downscale := getEnvInt("RENDER_DOWNSCALE", *renderDefaults.Downscale); downscale > 0 {
		config.Render.Downscale = &downscale
	}

	logging.Info("  FOCUS_API_URL:       %s", config.APIURL)
	logging.Info("  CONTROL_PORT:        %s", config.ControlPort)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  DOWNLOAD_DIR:        %s", config.DownloadDir)
	logging.Info("  DATABASE_DIR:        %s", config.DatabaseDir)
	logging.Info("  PLAYBACK_INTERVAL:   %v", config.PlaybackInterval)
	logging.Info("  REQUEST_TIMEOUT:     %v", config.RequestTimeout)
	logging.Info("  RENDER_TIMEOUT:      %v", config.RenderTimeout)
	logging.Info("  RETRY_MAX:           %d", config.RetryMax)
	logging.Info("  CLOSE_ON_REMOVE:     %v", config.CloseOnRemove)
	logging.Info("  FRAME_*:             downscale=%d infer_every=%d blur=%d feather=%d outline=%v quality=%d",
		config.Frame.Downscale, config.Frame.InferEvery, config.Frame.BlurKSize,
		config.Frame.FeatherPx, config.Frame.Outline, config.Frame.JPGQuality)
	logging.Info("  RENDER_*:            downscale=%s blur=%d feather=%d outline=%v",
		downscaleString(config.Render.Downscale), config.Render.BlurKSize,
		config.Render.FeatherPx, config.Render.Outline)
	logging.Info("  LOG_HTTP_REQUESTS:   %v", config.LogHTTPRequests)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := config.validate(); err != nil {
		return nil, err
	}

	var err error
	if config.DownloadDir, err = filepath.Abs(config.DownloadDir); err != nil {
		return nil, fmt.Errorf("failed to resolve download directory path: %w", err)
	}
	if config.DatabaseDir, err = filepath.Abs(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	config.DatabasePath = filepath.Join(config.DatabaseDir, journal.FileName)

	return config, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FOCUS_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	for name, port := range map[string]string{"CONTROL_PORT": c.ControlPort, "METRICS_PORT": c.MetricsPort} {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%s must be a port number, got %q", name, port)
		}
	}
	if c.MetricsEnabled && c.ControlPort == c.MetricsPort {
		return fmt.Errorf("CONTROL_PORT and METRICS_PORT must differ (both %s)", c.ControlPort)
	}
	if c.PlaybackInterval <= 0 {
		return fmt.Errorf("PLAYBACK_INTERVAL must be positive, got %v", c.PlaybackInterval)
	}
	if c.RequestTimeout < 0 || c.RenderTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must not be negative, got %d", c.RetryMax)
	}
	if c.Frame.JPGQuality < 1 || c.Frame.JPGQuality > 100 {
		return fmt.Errorf("FRAME_JPG_QUALITY must be between 1 and 100, got %d", c.Frame.JPGQuality)
	}
	for name, v := range map[string]int{
		"FRAME_DOWNSCALE":   c.Frame.Downscale,
		"FRAME_INFER_EVERY": c.Frame.InferEvery,
		"FRAME_BLUR_KSIZE":  c.Frame.BlurKSize,
		"RENDER_BLUR_KSIZE": c.Render.BlurKSize,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Frame.FeatherPx < 0 || c.Render.FeatherPx < 0 {
		return fmt.Errorf("feather radius must not be negative")
	}
	return nil
}

func downscaleString(d *int) string {
	if d == nil {
		return "source"
	}
	return strconv.Itoa(*d)
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogJournalInit logs journal initialization
func LogJournalInit(duration time.Duration, openSessions int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOURNAL INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Journal initialized in %v", duration)
	if openSessions > 0 {
		logging.Warn("  %d session(s) were left open by a previous run", openSessions)
		logging.Warn("  Close them with: focusctl prune")
	}
}

// LogServiceCheck logs the result of probing the processing service.
// An unreachable service is not fatal; every operation reports its own
// failures.
func LogServiceCheck(baseURL string, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PROCESSING SERVICE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  URL: %s", baseURL)
	if err != nil {
		logging.Warn("  Health check failed: %v", err)
		logging.Warn("  Uploads will fail until the service is reachable")
		return
	}
	logging.Info("  [OK] Service is healthy")
}

// HealthChecker probes the processing service. *apiclient.Client
// implements it.
type HealthChecker interface {
	Health(ctx context.Context) (*apiclient.OKResponse, error)
}

// CheckService probes the processing service with a short timeout.
func CheckService(ctx context.Context, h HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := h.Health(ctx)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("service reported not ok")
	}
	return nil
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes carry no methods
			return nil
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered control routes at debug level
func LogHTTPRoutes(router *mux.Router, logRequests bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CONTROL SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logRequests {
		logging.Info("  HTTP request logging: ON")
	} else {
		logging.Info("  HTTP request logging: OFF (set LOG_HTTP_REQUESTS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	ControlPort     string
	MetricsPort     string
	MetricsEnabled  bool
	Interactive     bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful start with the endpoints and key bindings
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("READY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Control:       http://localhost:%s/api/state", config.ControlPort)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	if config.Interactive {
		logging.Info("  Keys: space play/pause, <- -> step, r reset target,")
		logging.Info("        v render, x remove video, q quit")
	} else {
		logging.Info("  Press Ctrl+C to stop")
	}
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (%s)", reason)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   _____       __      _           __     ______
  / ___/__  __/ /_    (_)__  _____/ /_   / ____/___  _______  _______
  \__ \/ / / / __ \  / / _ \/ ___/ __/  / /_  / __ \/ ___/ / / / ___/
 ___/ / /_/ / /_/ / / /  __/ /__/ /_   / __/ / /_/ / /__/ /_/ (__  )
/____/\__,_/_.___/_/ /\___/\___/\__/  /_/    \____/\___/\__,_/____/
                /___/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

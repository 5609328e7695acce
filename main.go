package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/controller"
	"subject-focus/internal/export"
	"subject-focus/internal/journal"
	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
	"subject-focus/internal/middleware"
	"subject-focus/internal/server"
	"subject-focus/internal/session"
	"subject-focus/internal/startup"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jr := openJournal(ctx, config)

	client, err := apiclient.New(apiclient.Config{
		BaseURL: config.APIURL,
		Timeout: config.RequestTimeout,
		Retry:   config.RetryPolicy(),
	})
	if err != nil {
		startup.LogFatal("Processing service client: %v", err)
	}
	startup.LogServiceCheck(client.BaseURL(), startup.CheckService(ctx, client))

	feed := server.NewFeed(server.DefaultFeedSize)
	opts := session.Options{
		Frame:            config.Frame,
		Render:           config.Render,
		PlaybackInterval: config.PlaybackInterval,
		RenderTimeout:    config.RenderTimeout,
		CloseOnRemove:    config.CloseOnRemove,
		Notifier:         session.MultiNotifier{session.LogNotifier{}, feed},
	}
	if jr != nil {
		opts.Recorder = jr
		opts.Exporter = export.NewSaver(config.DownloadDir, client, jr)
	} else {
		opts.Exporter = export.NewSaver(config.DownloadDir, client, nil)
	}
	sess := session.New(client, opts)

	// Operations dispatched by the controller outlive a cancelled signal
	// context only as long as shutdown allows.
	opCtx, cancelOps := context.WithCancel(context.Background())
	defer cancelOps()
	ctrl := controller.New(opCtx, sess)

	srv := server.New(server.Config{
		Version: startup.Version,
		Logging: middleware.LoggingConfig{
			Enabled:         config.LogHTTPRequests,
			LogHealthChecks: true,
		},
	}, sess, ctrl, client, feed)
	startup.LogHTTPRoutes(srv.Router(), config.LogHTTPRequests)

	controlServer := &http.Server{
		Addr:              "localhost:" + config.ControlPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	serverErr := make(chan error, 2)
	go serve(controlServer, "Control", serverErr)

	var metricsServer *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go serve(metricsServer, "Metrics", serverErr)
	}

	term := startTerminal(ctrl)
	defer term.Restore()

	startup.LogServerStarted(startup.ServerConfig{
		ControlPort:     config.ControlPort,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		Interactive:     term.Interactive(),
		StartupDuration: time.Since(startTime),
	})

	if len(os.Args) > 1 {
		go uploadPath(opCtx, sess, os.Args[1])
	}

	var reason string
	select {
	case <-ctx.Done():
		reason = "received signal"
	case <-ctrl.Quit():
		reason = "quit key"
	case err := <-serverErr:
		logging.Error("Server error: %v", err)
		reason = "server error"
	}

	shutdown(reason, shutdownDeps{
		servers:   []*http.Server{controlServer, metricsServer},
		session:   sess,
		ctrl:      ctrl,
		cancelOps: cancelOps,
		client:    client,
		journal:   jr,
		terminal:  term,
	})
}

func serve(srv *http.Server, name string, errc chan<- error) {
	logging.Debug("%s server listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errc <- err
	}
}

// openJournal opens the session journal. A journal that cannot be opened
// is logged and skipped; sessions still work without it.
func openJournal(ctx context.Context, config *startup.Config) *journal.Journal {
	if !config.JournalEnabled {
		return nil
	}
	start := time.Now()
	jr, err := journal.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Warn("Journal disabled: %v", err)
		return nil
	}
	open, err := jr.OpenSessions(ctx)
	if err != nil {
		logging.Warn("Failed to list open sessions: %v", err)
	}
	startup.LogJournalInit(time.Since(start), len(open))
	return jr
}

type shutdownDeps struct {
	servers   []*http.Server
	session   *session.Session
	ctrl      *controller.Controller
	cancelOps context.CancelFunc
	client    *apiclient.Client
	journal   *journal.Journal
	terminal  *terminal
}

func shutdown(reason string, d shutdownDeps) {
	d.terminal.Restore()
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP servers")
	for _, srv := range d.servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	startup.LogShutdownStep("Cancelling pending operations")
	d.cancelOps()
	d.ctrl.Wait()
	startup.LogShutdownStepComplete("Pending operations finished")

	startup.LogShutdownStep("Closing session")
	if err := d.session.Close(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
		logging.Warn("Session close error: %v", err)
	}
	d.session.Wait()
	d.client.CloseIdleConnections()
	startup.LogShutdownStepComplete("Session closed")

	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			logging.Warn("Journal close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Journal closed")
		}
	}

	startup.LogShutdownComplete()
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/controller"
	"subject-focus/internal/middleware"
	"subject-focus/internal/session"
)

// DefaultMaxUploadBytes bounds POST /api/upload bodies.
const DefaultMaxUploadBytes int64 = 2 << 30

// Session is what the control surface reads and drives. *session.Session
// implements it.
type Session interface {
	controller.Session
	Upload(ctx context.Context, file apiclient.File) error
}

// Input is the interaction controller. *controller.Controller implements it.
type Input interface {
	HandleKey(k controller.Key) bool
	HandleClick(c controller.Click) bool
	StartRender() error
}

// HealthChecker probes the processing service.
type HealthChecker interface {
	Health(ctx context.Context) (*apiclient.OKResponse, error)
}

// Config holds the control surface settings.
type Config struct {
	Version        string
	MaxUploadBytes int64
	HealthTimeout  time.Duration
	Logging        middleware.LoggingConfig
}

// Server exposes the session over HTTP for a local UI.
type Server struct {
	cfg     Config
	session Session
	input   Input
	health  HealthChecker
	feed    *Feed
	started time.Time
	router  *mux.Router
}

// New creates a Server. health and feed may be nil.
func New(cfg Config, s Session, input Input, health HealthChecker, feed *Feed) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if feed == nil {
		feed = NewFeed(DefaultFeedSize)
	}
	srv := &Server{
		cfg:     cfg,
		session: s,
		input:   input,
		health:  health,
		feed:    feed,
		started: time.Now(),
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/health", s.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.GetState).Methods(http.MethodGet)
	api.HandleFunc("/frame", s.GetFrame).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.GetNotifications).Methods(http.MethodGet)
	api.HandleFunc("/upload", s.Upload).Methods(http.MethodPost)
	api.HandleFunc("/click", s.Click).Methods(http.MethodPost)
	api.HandleFunc("/key", s.Key).Methods(http.MethodPost)
	api.HandleFunc("/play", s.TogglePlay).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.Reset).Methods(http.MethodPost)
	api.HandleFunc("/render", s.Render).Methods(http.MethodPost)
	api.HandleFunc("/video", s.Remove).Methods(http.MethodDelete)

	return r
}

// Router returns the route table, for logging.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return middleware.Logger(s.cfg.Logging)(s.router)
}

// Feed returns the notification feed served by GET /api/notifications.
func (s *Server) Feed() *Feed {
	return s.feed
}

// Notifier returns the feed as a session.Notifier.
func (s *Server) Notifier() session.Notifier {
	return s.feed
}

// Package server exposes the job runner over HTTP: single response job
// submission, result history, the algorithm catalogue and the websocket
// progress stream.
package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/auth"
	"github.com/wolfeidau/tsrunner/internal/login"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
	"github.com/wolfeidau/tsrunner/internal/store"
	"github.com/wolfeidau/tsrunner/internal/telemetry"
)

// MsgNotFound is returned for unknown or foreign results and pipelines.
const MsgNotFound = "Объект не найден"

var errNotFound = apierr.ServiceStatus(http.StatusNotFound, MsgNotFound)

const (
	defaultMaxPayload          = 1 << 20
	defaultWriteTimeout        = 10 * time.Second
	defaultFirstMessageTimeout = 30 * time.Second
	algorithmsCacheMaxAge      = time.Hour
)

// Config holds the collaborators and limits of a Server.
type Config struct {
	Runner  *pipeline.Runner
	Results store.ResultStore
	Gate    *auth.Gate
	Login   *login.Handlers     // optional, mounts /auth/*
	Metrics *telemetry.Metrics // optional

	// AllowedOrigins restricts websocket handshakes by Origin header. Empty
	// allows every origin; streams authenticate with a token, not cookies.
	AllowedOrigins []string

	MaxPayload          int64         // largest accepted job payload in bytes
	WriteTimeout        time.Duration // per frame write deadline
	FirstMessageTimeout time.Duration // how long a stream waits for its payload
}

// Server serves the job API.
type Server struct {
	runner   *pipeline.Runner
	results  store.ResultStore
	gate     *auth.Gate
	login    *login.Handlers
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader

	maxPayload          int64
	writeTimeout        time.Duration
	firstMessageTimeout time.Duration
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		runner:              cfg.Runner,
		results:             cfg.Results,
		gate:                cfg.Gate,
		login:               cfg.Login,
		metrics:             cfg.Metrics,
		maxPayload:          cfg.MaxPayload,
		writeTimeout:        cfg.WriteTimeout,
		firstMessageTimeout: cfg.FirstMessageTimeout,
	}
	if s.metrics == nil {
		s.metrics = telemetry.NoopMetrics()
	}
	if s.maxPayload <= 0 {
		s.maxPayload = defaultMaxPayload
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	if s.firstMessageTimeout <= 0 {
		s.firstMessageTimeout = defaultFirstMessageTimeout
	}

	origins := slices.Clone(cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}

	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.login != nil {
		s.login.Register(mux, s.gate)
	}

	requireAccess := s.gate.RequireAccess()
	mux.Handle("POST /jobs/{pipeline}", requireAccess(http.HandlerFunc(s.submitJob)))
	mux.Handle("GET /jobs/{pipeline}", requireAccess(http.HandlerFunc(s.listResults)))
	mux.Handle("GET /jobs/{pipeline}/{id}", requireAccess(http.HandlerFunc(s.getResult)))
	mux.HandleFunc("GET /algorithms/{pipeline}", s.listAlgorithms)

	// the stream authenticates after the upgrade so rejections are frames
	mux.HandleFunc("GET /ws/jobs/{pipeline}", s.stream)

	return mux
}

func pipelineOf(r *http.Request) (pipeline.Kind, error) {
	kind, ok := pipeline.ParseKind(r.PathValue("pipeline"))
	if !ok {
		return "", errNotFound
	}
	return kind, nil
}

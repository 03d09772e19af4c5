package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"meico/internal/daemon"
	"meico/internal/engine"
	"meico/internal/logging"
)

// EngineFactory builds the engine used for one request. workDir is the
// request's scratch area.
type EngineFactory func(workDir string) (engine.Engine, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server is the HTTP surface over a running daemon.
type Server struct {
	daemon    *daemon.Daemon
	newEngine EngineFactory
	logger    *slog.Logger
	handler   http.Handler

	listener net.Listener
	server   *http.Server
}

// New wires the routes. newEngine is called once per conversion request.
func New(d *daemon.Daemon, newEngine EngineFactory, opts ...Option) (*Server, error) {
	if d == nil || newEngine == nil {
		return nil, errors.New("httpapi requires a daemon and an engine factory")
	}
	s := &Server{
		daemon:    d,
		newEngine: newEngine,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")

	token := strings.TrimSpace(d.Config().Service.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/meico", authMiddleware(token, s.handleConvert))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", d.Metrics().Handler())
	mux.HandleFunc("/api/runs", authMiddleware(token, s.handleRuns))
	s.handler = mux

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured bind address and serves until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.daemon.Config().Service.Bind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_server_error"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_server_start"),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type errorBody struct {
	Errors string `json:"errors"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeRaw(w, status, payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorBody{Errors: message})
}

func writeRaw(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

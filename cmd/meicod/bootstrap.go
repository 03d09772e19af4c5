package main

import (
	"context"
	"log/slog"

	"meico/internal/config"
	"meico/internal/daemon"
	"meico/internal/engine/bridge"
	"meico/internal/history"
	"meico/internal/httpapi"
	"meico/internal/logging"
)

type service struct {
	daemon  *daemon.Daemon
	server  *httpapi.Server
	engines *bridge.Factory
	logger  *slog.Logger
}

func bootstrap(cfg *config.Config, logger *slog.Logger) (*service, error) {
	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}

	d, err := daemon.New(cfg, logger, daemon.WithHistory(store))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engines := bridge.NewFactory(cfg.Engine, bridge.WithLogger(logger))
	srv, err := httpapi.New(d, engines.Engine, httpapi.WithLogger(logger))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return &service{daemon: d, server: srv, engines: engines, logger: logger}, nil
}

// start takes the scratch lock before the listener opens.
func (s *service) start(ctx context.Context) error {
	if err := s.engines.Check(); err != nil {
		logging.WarnWithContext(s.logger, "conversion engine unavailable", "engine_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "conversion requests will fail with 503 until the engine is installed"),
			logging.String(logging.FieldErrorHint, "set engine.jar_path and engine.java_binary, then run meico check"),
		)
	}
	if err := s.daemon.Start(ctx); err != nil {
		return err
	}
	if err := s.server.Start(ctx); err != nil {
		s.daemon.Stop()
		return err
	}
	return nil
}

func (s *service) addr() string { return s.server.Addr() }

func (s *service) close() {
	s.server.Stop()
	if err := s.daemon.Close(); err != nil {
		s.logger.Warn("daemon close", logging.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"meico/internal/config"
	"meico/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg, "meicod")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	svc, err := bootstrap(cfg, logger)
	if err != nil {
		logger.Error("create service", logging.Error(err))
		log.Fatalf("create service: %v", err)
	}
	defer svc.close()

	if err := svc.start(ctx); err != nil {
		logger.Error("start service", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("meicod shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
}

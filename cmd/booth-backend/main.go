package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/config"
	"github.com/snapbooth/booth/internal/logging"
	"github.com/snapbooth/booth/internal/publish"
	"github.com/snapbooth/booth/internal/telemetry"
	"github.com/snapbooth/booth/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override backend port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *port > 0 {
		cfg.Backend.Port = *port
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("backend stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName += "-backend"
	shutdownTracing, err := telemetry.Setup(ctx, telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(sctx)
	}()

	store, err := publish.NewLocalStore(cfg.Backend.BackupDir)
	if err != nil {
		return err
	}

	var publisher publish.Publisher
	if cfg.Backend.S3.Bucket != "" {
		s3p, err := publish.NewS3Publisher(ctx, cfg.Backend.S3)
		if err != nil {
			return err
		}
		publisher = s3p
		logger.WithField("bucket", cfg.Backend.S3.Bucket).Info("publishing to S3")
	} else {
		publisher = publish.NewLocalPublisher(cfg.Backend.PublicBaseURL)
		logger.WithField("base_url", cfg.Backend.PublicBaseURL).Info("publishing from local store")
	}

	server := publish.NewServer(store, publisher, cfg.Backend.MaxUploadSize, logger)

	mux := http.NewServeMux()
	mux.Handle("/", server.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	return ws.ListenAndServe(ctx, cfg.BackendAddr(), mux, logger)
}

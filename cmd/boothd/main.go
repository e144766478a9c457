package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/booth"
	"github.com/snapbooth/booth/internal/camera"
	"github.com/snapbooth/booth/internal/composite"
	"github.com/snapbooth/booth/internal/config"
	"github.com/snapbooth/booth/internal/logging"
	"github.com/snapbooth/booth/internal/metrics"
	"github.com/snapbooth/booth/internal/monitor"
	"github.com/snapbooth/booth/internal/qr"
	"github.com/snapbooth/booth/internal/telemetry"
	"github.com/snapbooth/booth/internal/upload"
	"github.com/snapbooth/booth/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	driver := flag.String("camera", "", "Override camera driver (mock, snapshot, command)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Camera.Driver = *driver
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("booth stopped")
	}
	logger.Info("booth stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	cam, err := camera.New(cfg.Camera, logger)
	if err != nil {
		return err
	}
	qrRenderer, err := qr.NewRenderer(cfg.QR)
	if err != nil {
		return err
	}

	var server *ws.Server
	broadcaster := ws.NewBroadcaster(func() ws.SnapshotPayload {
		return server.Snapshot()
	}, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections, logger)
	defer broadcaster.Close()

	machine := booth.New(booth.Options{
		Booth:        cfg.Booth,
		CameraConfig: cfg.Camera,
		Layout:       composite.LayoutFromConfig(cfg.Composite),
		Camera:       cam,
		Composer: composite.New(composite.Options{
			Interpolation: cfg.Composite.Interpolation,
			Logger:        logger,
		}),
		Uploader: upload.New(cfg.Upload.Endpoint, cfg.Upload.Timeout, logger),
		QR:       qrRenderer,
		Notifier: broadcaster,
		Logger:   logger,
	})
	defer machine.Close()

	var health ws.HealthSource
	if cfg.Health.Enabled {
		mon := monitor.New(cfg.Health, logger)
		mon.OnChange(func(_, next monitor.Health) {
			metrics.Health(next.Status == monitor.Connected)
			machine.ReportHealth(next.Status.String(), next.LastError)
		})
		stopMonitor := mon.Start(ctx)
		defer stopMonitor()
		health = mon
	} else {
		logger.Info("backend health checks disabled")
	}

	server = ws.NewServer(cfg, machine, health, broadcaster, logger)

	go func() {
		if err := machine.Boot(ctx); err != nil {
			logger.WithError(err).Warn("booth opened without a working camera")
		}
	}()

	logger.WithFields(logrus.Fields{
		"camera":      cfg.Camera.Driver,
		"photo_count": cfg.Booth.PhotoCount,
		"upload":      cfg.Upload.Endpoint,
	}).Info("booth starting")
	return ws.ListenAndServe(ctx, cfg.Addr(), server.Handler(), logger)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"callinsights-server/pkg/config"
	"callinsights-server/pkg/database"
	httpserver "callinsights-server/pkg/http"
	"callinsights-server/pkg/insights"
	"callinsights-server/pkg/messaging"
	"callinsights-server/pkg/metrics"
	"callinsights-server/pkg/recommend"
	"callinsights-server/pkg/scheduler"
	"callinsights-server/pkg/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.Logging.ConfigureLogger(logger)

	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"variant": cfg.Insights.Variant,
	}).Info("Starting call insights server")

	metrics.StartMetrics(logger, cfg.HTTP.EnableMetrics)

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	engine := insights.NewEngine(cfg.Insights, logger)
	recommender := recommend.New(store, cfg.Insights, logger)
	publisher := messaging.NewPublisher(cfg.Messaging, logger)
	defer publisher.Close()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sched := scheduler.New(store, engine, publisher, cfg.Scheduler, logger)
	sched.Start(rootCtx)

	server := httpserver.NewServer(cfg.HTTP, cfg.Streaming, store, engine, recommender, sched, publisher, logger)
	server.Start()

	// Wait for a termination signal
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.WithField("signal", sig.String()).Info("Shutting down")

	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	sched.Stop()

	logger.Info("Shutdown complete")
}

// openStore selects MySQL or the in-memory store per configuration
func openStore(cfg *config.Config, logger *logrus.Logger) (database.Store, error) {
	if cfg.Database.Enabled {
		return database.NewMySQLStore(cfg.Database, logger)
	}

	logger.Warn("Database disabled, using in-memory store; records are lost on restart")
	return database.NewMemoryStore(), nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/analytics/cohort"
	"github.com/synaptica-ai/registercohort/pkg/bootstrap"
	"github.com/synaptica-ai/registercohort/pkg/common/database"
	"github.com/synaptica-ai/registercohort/pkg/common/kafka"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
)

func main() {
	logger.Init()
	cfg, p, err := bootstrap.LoadConfig("")
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Load(ctx, cfg, p)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize cohort components")
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to run registry")
	}
	runs := cohort.NewRunRepository(db)
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate run registry")
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.CohortEventTopic)
	defer producer.Close()

	runner := cohort.NewRunner(runs, components.Job(), producer, cfg.MaxWorkers)
	service := &CohortService{runner: runner}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.CohortRequestTopic, cfg.KafkaGroupID)
	go func() {
		if err := consumer.Consume(ctx, service.handleBuildEvent); err != nil && err != context.Canceled {
			logger.Log.WithError(err).Error("Build request consumer stopped")
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      service.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Cohort Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Cohort Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}
	if err := consumer.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close consumer")
	}
	runner.Wait()
	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Cohort Service stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/rag-eval/internal/bootstrap"
	"github.com/kirillkom/rag-eval/internal/config"
	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	// the worker only makes sense with a queue to consume
	cfg.QueueEnabled = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	app, err := bootstrap.New(ctx, cfg, logger, "worker")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeRunRequests(ctx, func(handlerCtx context.Context, req domain.RunRequest) error {
		result, err := app.Service.Run(handlerCtx, req, nil)
		if err != nil {
			return err
		}
		logger.Info("run_completed",
			"run_id", result.RunID,
			"pipeline", req.Pipeline,
			"evaluated", result.Summary.Evaluated,
			"failed", result.Summary.Failed,
			"avg_score", result.Summary.AvgScore,
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}

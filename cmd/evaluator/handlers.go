package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/kirillkom/rag-eval/internal/adapters/http"
	"github.com/kirillkom/rag-eval/internal/bootstrap"
	"github.com/kirillkom/rag-eval/internal/config"
	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/infrastructure/chunking"
	"github.com/kirillkom/rag-eval/internal/observability/logging"
	"github.com/kirillkom/rag-eval/internal/observability/metrics"
)

var errTargetNotMet = errors.New("improvement target not met")

func openApp(ctx context.Context, service string) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, service, cfg.LogLevel)
	app, err := bootstrap.New(ctx, cfg, logger, service)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func runPipeline(cmd *cobra.Command, pipeline, datasetPath, runID string, asJSON bool) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, "evaluator")
	if err != nil {
		return err
	}
	defer app.Close()

	dataset, err := app.Datasets.Load(ctx, datasetPath)
	if err != nil {
		return err
	}
	result, err := app.Service.Run(ctx, domain.RunRequest{
		RunID:       runID,
		Pipeline:    pipeline,
		DatasetPath: datasetPath,
	}, dataset)
	if result != nil {
		if printErr := printRun(cmd.OutOrStdout(), result, asJSON); printErr != nil {
			return printErr
		}
	}
	return err
}

func runCompare(cmd *cobra.Command, baselineRunID, enhancedRunID string, asJSON bool) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, "evaluator")
	if err != nil {
		return err
	}
	defer app.Close()

	cmp, err := app.Service.CompareRuns(ctx, baselineRunID, enhancedRunID)
	if cmp != nil {
		if printErr := printComparison(cmd.OutOrStdout(), cmp, asJSON); printErr != nil {
			return printErr
		}
	}
	return err
}

func runEvaluate(cmd *cobra.Command, datasetPath string, asJSON, strict bool) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, "evaluator")
	if err != nil {
		return err
	}
	defer app.Close()

	dataset, err := app.Datasets.Load(ctx, datasetPath)
	if err != nil {
		return err
	}
	evaluation, err := app.Service.RunComparison(ctx, dataset)
	if evaluation != nil {
		if printErr := printEvaluation(cmd.OutOrStdout(), evaluation, asJSON); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return err
	}
	if strict && !evaluation.Comparison.TargetMet {
		return errTargetNotMet
	}
	return nil
}

func runIndex(cmd *cobra.Command, file string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, "evaluator")
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.Datasets.LoadDocuments(ctx, file)
	if err != nil {
		return err
	}
	chunks := chunking.NewSplitter(app.Config.IndexChunkSize, app.Config.IndexChunkOverlap).Documents(docs)
	if err := app.Index.UpsertDocuments(ctx, chunks); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents as %d points into %s\n", len(docs), len(chunks), app.Config.QdrantCollection)
	return err
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, "api")
	if err != nil {
		return err
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics("api", app.Metrics.Registry())
	router := httpadapter.NewRouter(app.Service, httpadapter.RouterOptions{
		Queue:      app.Queue,
		Metrics:    app.Metrics.Handler(),
		Instrument: httpMetrics.Middleware,
		Logger:     app.Logger,
	}).Handler()

	server := &http.Server{
		Addr:              ":" + app.Config.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("api_shutdown_failed", "error", err)
		return err
	}
	return nil
}

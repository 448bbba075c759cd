// Command labelgen-api serves the wine-label generation pipeline: submission
// intake, per-generation status, the queue-consumer endpoint, and (in
// dev/local mode) content-addressed preview images straight off disk.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"labelgen/internal/api"
	"labelgen/internal/config"
	"labelgen/internal/dispatcher"
	"labelgen/internal/editmapper"
	"labelgen/internal/imageadapter"
	"labelgen/internal/imagestore"
	"labelgen/internal/llmharness"
	"labelgen/internal/orchestrator"
	"labelgen/internal/persistence"
	"labelgen/internal/renderer"
	"labelgen/internal/visionrefiner"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer db.Close()

	blob := imagestore.NewDiskBlob(cfg.StorageRoot, cfg.BaseURL+"/static/content")
	store := imagestore.New(db, blob)

	textModel := newTextModel(cfg)
	harness := llmharness.New(textModel, logger)

	adapter := newImageAdapter(cfg)
	render := newRenderer(cfg)
	refiner := visionrefiner.New(harness, cfg.VisionModel)
	mapper := editmapper.New(nil)

	orchCfg := orchestrator.Config{
		StageModels:         cfg.StageModels,
		MaxIterations:       cfg.MaxIterations,
		MaxImageConcurrency: cfg.MaxImageConcurrency,
	}
	orch := orchestrator.New(db, harness, adapter, store, render, refiner, mapper, orchCfg, logger)

	disp := dispatcher.New(db, orch, cfg.JobQueueURL, cfg.WebhookSecret, logger)
	srv := api.New(db, disp, cfg.WebhookSecret, cfg.StorageRoot, cfg.BaseURL, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}

// newTextModel selects the text/structured-output LLM transport. An empty
// endpoint wires an empty MockModel: startup does not fail, but every
// LLM-backed stage call returns a "no response configured" error.
func newTextModel(cfg config.Config) llmharness.TextModel {
	if cfg.TextLLMEndpoint == "" {
		return &llmharness.MockModel{}
	}
	return llmharness.NewHTTPModel(cfg.TextLLMEndpoint, cfg.TextLLMAPIKey)
}

func newImageAdapter(cfg config.Config) imageadapter.Adapter {
	if cfg.ImageModelEndpoint == "" {
		return &imageadapter.MockAdapter{}
	}
	return imageadapter.NewHTTPAdapter(cfg.ImageModelEndpoint, cfg.ImageModelAPIKey, cfg.ImageModel)
}

func newRenderer(cfg config.Config) renderer.Client {
	endpoint := os.Getenv("LABELGEN_RENDERER_ENDPOINT")
	if endpoint == "" {
		return &renderer.MockClient{}
	}
	return renderer.NewHTTPClient(endpoint)
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshkit/img2mesh/internal/api"
	"github.com/meshkit/img2mesh/internal/infra/config"
	"github.com/meshkit/img2mesh/internal/infra/httpclient"
	"github.com/meshkit/img2mesh/internal/infra/limiter"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/internal/infra/metrics"
	"github.com/meshkit/img2mesh/internal/service/exporter"
	"github.com/meshkit/img2mesh/internal/service/imageproc"
	"github.com/meshkit/img2mesh/internal/service/orchestrator"
	"github.com/meshkit/img2mesh/internal/service/promptrender"
	"github.com/meshkit/img2mesh/internal/service/rembg"
	"github.com/meshkit/img2mesh/internal/service/shapegen"
	"github.com/meshkit/img2mesh/internal/service/texgen"
)

func main() {
	_ = godotenv.Load()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Init logger
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	// Init HTTP client shared by all inference clients
	httpClient := httpclient.New(httpclient.Options{
		Timeout:    time.Duration(cfg.HTTPClient.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.HTTPClient.MaxRetries,
	})

	// Init limiter and metrics
	lim := limiter.New(cfg.Limiter.MaxConcurrent, cfg.Limiter.RatePerSecond)
	m := metrics.New(prometheus.DefaultRegisterer)

	// Init stage services
	rembgClient := rembg.New(cfg.Rembg.BaseURL, httpClient, zapLogger)
	normalizer := imageproc.New(rembgClient, cfg.Image.MaxDimension, cfg.Image.EnhanceColors, zapLogger)

	var renderer orchestrator.PromptRenderer
	if cfg.TextToImage.Enabled {
		renderer = promptrender.New(cfg.TextToImage.APIKey, cfg.TextToImage.Model,
			cfg.Image.MaxDimension, httpClient, zapLogger)
	}

	shapeClient := shapegen.New(cfg.ShapeGen.BaseURL, shapegen.Params{
		InferenceSteps:   cfg.ShapeGen.InferenceSteps,
		OctreeResolution: cfg.ShapeGen.OctreeResolution,
		NumChunks:        cfg.ShapeGen.NumChunks,
		Seed:             cfg.ShapeGen.Seed,
	}, cfg.ShapeGen.ReleaseAfterRun, httpClient, zapLogger)

	var painter texgen.Painter
	if cfg.TexGen.Enabled {
		painter = texgen.NewClient(cfg.TexGen.BaseURL, httpClient, zapLogger)
	}
	textureSynth := texgen.NewSynthesizer(painter, zapLogger)

	exportSvc := exporter.New(cfg.Output.Dir, int64(cfg.Output.MaxFileSizeMB)*1024*1024, zapLogger)

	// Init orchestrator
	orch := orchestrator.New(normalizer, renderer, shapeClient, textureSynth, exportSvc, lim, m, zapLogger)

	// Init router
	router := api.NewRouter(orch, zapLogger)

	// Create server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	// Start server
	go func() {
		zapLogger.Info("starting server",
			"addr", cfg.Server.Addr,
			"texture_enabled", cfg.TexGen.Enabled,
			"text_to_image_enabled", cfg.TextToImage.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server forced to shutdown", "error", err)
	}
	zapLogger.Info("server stopped")
}

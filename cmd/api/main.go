package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clypser/finance-bot/internal/api/handlers"
	"github.com/clypser/finance-bot/internal/config"
	"github.com/clypser/finance-bot/internal/gcs"
	infraBQ "github.com/clypser/finance-bot/internal/infra/bigquery"
	"github.com/clypser/finance-bot/internal/inference"
	"github.com/clypser/finance-bot/internal/jobs"
	"github.com/clypser/finance-bot/internal/jobs/inmemory"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/clypser/finance-bot/internal/pipeline"
	"github.com/clypser/finance-bot/internal/records"
)

func main() {
	bootLog := logger.New()

	cfg, err := config.ProcessEnvironmentVariables()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	var (
		port    = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		workers = flag.Int("workers", 5, "Number of message workers")
		buffer  = flag.Int("queue-size", 100, "Message queue buffer size")
	)
	flag.Parse()

	// Initialize logger
	log, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	candidates, err := cfg.LoadCandidates(ctx, gcs.NewStorageFetcher())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load inference candidates")
	}

	// Initialize inference
	var provider inference.Provider
	if cfg.GeminiAPIKey != "" {
		gemini, err := inference.NewGeminiProvider(cfg.GeminiAPIKey, cfg.ProxyURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create inference provider")
		}
		provider = gemini
	} else {
		log.Warn().Msg("No GEMINI_API_KEY configured - extraction will use the local parser only")
	}
	orchestrator := inference.NewOrchestrator(provider, cfg.InferenceTimeout)
	extractor := pipeline.NewExtractor(orchestrator)

	// Initialize repositories
	repo, err := infraBQ.NewRepository(ctx, cfg.GCPProject, cfg.BQDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	svc := records.NewService(repo, extractor, candidates, cfg.DefaultCurrency)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(*buffer, jobStore, inmemory.WithWorkers(*workers))

	// Start workers in background to process messages
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", *workers).Int("candidates", len(candidates)).Msg("Starting message workers")
	if err := jobQueue.Start(workerCtx, jobs.ExtractMessageHandler(svc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start message workers")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handlers.NewRouter(svc, jobQueue, jobStore, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

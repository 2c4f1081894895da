package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-recurring/internal/api"
	"github.com/dvloznov/finance-recurring/internal/app"
	"github.com/dvloznov/finance-recurring/internal/config"
	"github.com/dvloznov/finance-recurring/internal/jobs"
	"github.com/dvloznov/finance-recurring/internal/jobs/inmemory"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/dvloznov/finance-recurring/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	fs := flag.NewFlagSet("api", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	withScheduler := fs.Bool("scheduler", false, "Also run the daily scheduler in this process")
	fs.Parse(os.Args[1:])

	// Initialize logger
	log, err := app.NewLogger(cfg, "recurring-api")
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer application.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(inmemory.WithMaxFinished(cfg.JobRetention))
	jobQueue := inmemory.NewQueue(cfg.QueueSize, jobStore, inmemory.WithWorkers(cfg.Workers))

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewProcessRecurringHandler(application.Processor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	if *withScheduler {
		loc, _ := cfg.Location()
		sched := scheduler.New(jobQueue, cfg.Users, loc, scheduler.WithRunOnStart(cfg.RunOnStart))
		go sched.Run(workerCtx)
	}

	handler := api.NewRouter(api.Dependencies{
		Publisher: jobQueue,
		JobStore:  jobStore,
		Previewer: application.Processor,
		Ledger:    application.Ledger,
		Log:       log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
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

	// Cancel worker context
	cancelWorker()

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

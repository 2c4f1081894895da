package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent job workers")
	fs.BoolVar(&cfg.RunOnStart, "run-on-start", cfg.RunOnStart, "Process every configured user at start-up")
	fs.Parse(os.Args[1:])

	// Initialize logger
	log, err := app.NewLogger(cfg, "recurring-worker")
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer application.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid timezone")
	}

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore(inmemory.WithMaxFinished(cfg.JobRetention))
	jobQueue := inmemory.NewQueue(cfg.QueueSize, jobStore, inmemory.WithWorkers(cfg.Workers))

	log.Info().
		Strs("users", cfg.Users).
		Int("workers", cfg.Workers).
		Msg("Starting worker service")

	// Start consuming jobs
	if err := jobQueue.Start(ctx, jobs.NewProcessRecurringHandler(application.Processor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	sched := scheduler.New(jobQueue, cfg.Users, loc, scheduler.WithRunOnStart(cfg.RunOnStart))
	go sched.Run(ctx)

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers and the scheduler
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/feeds"
	"github.com/joblens/job-import-service/internal/ingestion"
	"github.com/joblens/job-import-service/internal/queue"
	"github.com/joblens/job-import-service/internal/scheduler"
	"github.com/joblens/job-import-service/internal/server"
	"github.com/joblens/job-import-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize storage")
	}
	defer store.Close()

	// Initialize the Redis work queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping().Err(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to Redis")
	}
	workQueue := queue.NewWorkQueue(redisClient, cfg.Queue.Name)

	// Re-queue items a previous process left mid-flight
	if recovered, err := workQueue.RecoverPending(); err != nil {
		logrus.WithError(err).Error("failed to recover pending work items")
	} else if recovered > 0 {
		logrus.WithField("count", recovered).Info("recovered pending work items")
	}

	// Initialize the fetch-and-enqueue cycle and its scheduler
	feedClient := feeds.NewClient(cfg.Ingestion.Timeout)
	ingestor := ingestion.NewService(cfg.Ingestion, feedClient, workQueue)

	sched, err := scheduler.New(cfg.Ingestion, ingestor.RunCycle)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize scheduler")
	}

	// Initialize HTTP server for the import-log API
	httpServer := server.NewServer(cfg.Server, store)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("starting HTTP server")
		if err := httpServer.Start(); err != nil {
			logrus.WithError(err).Error("HTTP server stopped")
		}
	}()

	// Start ingestion workers, each with its own run summary
	var workers sync.WaitGroup
	for i := 0; i < cfg.Ingestion.WorkerCount; i++ {
		worker := ingestion.NewWorker(i, workQueue, store, cfg.Ingestion.DequeueWait)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(ctx)
		}()
	}
	logrus.WithField("workers", cfg.Ingestion.WorkerCount).Info("ingestion workers started")

	sched.Start()

	// Wait for shutdown signal
	<-sigChan
	logrus.Info("shutdown signal received, gracefully shutting down")

	sched.Stop()
	cancel()
	workers.Wait()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown error")
	}

	logrus.Info("shutdown complete")
}

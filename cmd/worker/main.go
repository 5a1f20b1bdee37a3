package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"attendance-export/internal/attendance"
	"attendance-export/internal/config"
	"attendance-export/internal/export"
	"attendance-export/internal/exportjob"
	"attendance-export/internal/logging"
	"attendance-export/internal/queue"
	"attendance-export/internal/store"
)

// The worker drains export jobs from the queue, renders their artifacts,
// and records the outcome on each job.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Component("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "exports:jobs")
	}

	records := attendance.NewRepository(db.Client)
	jobs := exportjob.NewRepository(db.Client)
	renderer := export.NewRenderer(records)
	mgr := exportjob.NewManager(jobs, q, renderer, exportjob.RealClock{}, exportjob.UUIDGenerator{}, cfg.StorageRoot, cfg.RetentionDays)

	worker := exportjob.NewWorker(q, mgr, cfg.WorkerConcurrency)
	if err := worker.Run(ctx); err != nil {
		log.WithError(err).Fatal("worker failed")
	}
}

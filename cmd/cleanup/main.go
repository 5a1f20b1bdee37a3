package main

import (
	"context"

	"github.com/joho/godotenv"

	"attendance-export/internal/attendance"
	"attendance-export/internal/config"
	"attendance-export/internal/export"
	"attendance-export/internal/exportjob"
	"attendance-export/internal/logging"
	"attendance-export/internal/queue"
	"attendance-export/internal/store"
)

// One-shot sweep of expired export jobs and their artifact files, meant
// to run from cron.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Component("cleanup")

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()

	records := attendance.NewRepository(db.Client)
	jobs := exportjob.NewRepository(db.Client)
	renderer := export.NewRenderer(records)
	mgr := exportjob.NewManager(jobs, queue.NewInMemory(1), renderer, exportjob.RealClock{}, exportjob.UUIDGenerator{}, cfg.StorageRoot, cfg.RetentionDays)

	removed, err := mgr.CleanupExpired(context.Background())
	if err != nil {
		log.WithError(err).Fatal("cleanup failed")
	}
	log.WithField("removed", removed).Info("cleanup finished")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"attendance-export/internal/attendance"
	"attendance-export/internal/config"
	"attendance-export/internal/logging"
	"attendance-export/internal/store"
	syncpkg "attendance-export/internal/sync"
)

// One-shot sync trigger: `sync full` pulls the complete upstream dataset,
// `sync incremental` pulls only records updated since the last successful
// run.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.Component("sync-cli")

	mode := "incremental"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != syncpkg.TypeFull && mode != syncpkg.TypeIncremental {
		fmt.Fprintf(os.Stderr, "usage: %s [full|incremental]\n", os.Args[0])
		os.Exit(2)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	records := attendance.NewRepository(db.Client)
	status := syncpkg.NewStatusRepository(db.Client)
	upstream := syncpkg.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	engine := syncpkg.NewEngine(upstream, records, status, syncpkg.RealClock{}, cfg.SyncBatchSize)

	ctx := context.Background()
	var res syncpkg.Result
	if mode == syncpkg.TypeFull {
		res, err = engine.FullSync(ctx)
	} else {
		res, err = engine.IncrementalSync(ctx)
	}
	if err != nil {
		log.WithError(err).Fatal("sync failed")
	}
	log.WithField("records_processed", res.RecordsProcessed).Info("sync finished")
}

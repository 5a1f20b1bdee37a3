package exportjob

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"attendance-export/internal/logging"
	"attendance-export/internal/queue"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "export_jobs_processed_total",
	Help: "Export job executions by terminal status.",
}, []string{"status"})

// Worker consumes job ids from the queue and executes them with bounded
// concurrency. Per-task errors are written to the job record and never
// terminate the consumer loop.
type Worker struct {
	queue       queue.Queue
	mgr         *Manager
	concurrency int
	log         *logrus.Entry
}

// NewWorker creates a worker draining q into mgr.Execute.
func NewWorker(q queue.Queue, mgr *Manager, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{queue: q, mgr: mgr, concurrency: concurrency, log: logging.Component("export-worker")}
}

// Run blocks until ctx is canceled, draining in-flight executions before
// returning.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	w.log.Info("export worker started")
	for msg := range messages {
		if msg.Type != MessageTypeExport {
			continue
		}
		jobID := string(msg.Body)

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := w.mgr.Execute(ctx, jobID); err != nil {
				jobsProcessed.WithLabelValues("error").Inc()
				w.log.WithError(err).WithField("job_id", jobID).Error("job execution error")
				return
			}
			if job, err := w.mgr.GetJob(ctx, jobID); err == nil {
				jobsProcessed.WithLabelValues(string(job.Status)).Inc()
			}
		}()
	}

	wg.Wait()
	w.log.Info("export worker stopped")
	return nil
}

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/ingest"
)

// Worker ingests inbox files.
type Worker struct {
	id        int
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewWorker creates a new Worker.
func NewWorker(id int, scheduler *Scheduler, logger *zap.Logger) *Worker {
	return &Worker{
		id:        id,
		scheduler: scheduler,
		logger:    logger.With(zap.Int("worker_id", id)),
	}
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	w.logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopped")
			return
		case job := <-w.scheduler.jobChan:
			result := w.processJobWithRetry(ctx, job)
			select {
			case w.scheduler.resultChan <- result:
			case <-ctx.Done():
				w.scheduler.activeJobs.Delete(job.Path)
				return
			}
		}
	}
}

// processJobWithRetry retries store failures; unparseable logs fail at once.
func (w *Worker) processJobWithRetry(ctx context.Context, job *Job) *JobResult {
	w.scheduler.activeJobs.Store(job.Path, &RunningJob{Job: job, StartedAt: time.Now()})

	result := w.processJob(ctx, job)

	for !result.Success && w.shouldRetry(job, result.Error) {
		w.logger.Info("Retrying inbox file",
			zap.String("path", job.Path),
			zap.Int("attempt", job.Attempt+1),
			zap.Error(result.Error),
		)
		w.scheduler.retried.Add(1)

		select {
		case <-ctx.Done():
			return result
		case <-time.After(w.scheduler.config.RetryBackoff()):
		}

		job.Attempt++
		result = w.processJob(ctx, job)
	}

	return result
}

func (w *Worker) shouldRetry(job *Job, err error) bool {
	if err == nil || ctxDone(w.scheduler.ctx) {
		return false
	}
	return job.Attempt < w.scheduler.config.MaxRetries && ingest.IsRetryable(err)
}

// processJob reads and ingests a single file.
func (w *Worker) processJob(ctx context.Context, job *Job) *JobResult {
	start := time.Now()

	data, err := os.ReadFile(job.Path)
	if err != nil {
		return &JobResult{Job: job, Error: fmt.Errorf("failed to read inbox file: %w", err)}
	}

	run, err := w.scheduler.ingester.Ingest(ctx, ingest.Request{
		Text:           string(data),
		DefaultRunName: runNameFromPath(job.Path),
		Source:         "inbox",
	})
	if err != nil {
		return &JobResult{Job: job, Error: err}
	}

	w.logger.Debug("Inbox file parsed",
		zap.String("path", job.Path),
		zap.Duration("duration", time.Since(start)),
	)

	return &JobResult{Job: job, Run: run, Success: true}
}

// runNameFromPath names a run after its file, without the extension.
func runNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

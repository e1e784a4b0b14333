// Package scheduler ingests log files dropped into the inbox directory.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
	"github.com/mayura26/strategy-analyser-sub000/internal/ingest"
)

const (
	processedDir = "processed"
	failedDir    = "failed"

	// debounceDelay lets writers finish before a file is picked up.
	debounceDelay = 500 * time.Millisecond
)

// Ingester stores one log.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*domain.Run, error)
}

// Scheduler watches the inbox and feeds files to a worker pool.
type Scheduler struct {
	config   *config.InboxConfig
	ingester Ingester
	logger   *zap.Logger

	workerCount int
	workers     []*Worker
	jobChan     chan *Job
	resultChan  chan *JobResult

	activeJobs sync.Map // path -> *RunningJob
	cron       *cron.Cron
	watcher    *fsnotify.Watcher

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Job is one inbox file waiting for ingestion.
type Job struct {
	Path       string
	Attempt    int
	EnqueuedAt time.Time
}

// RunningJob tracks a file that is queued or being ingested.
type RunningJob struct {
	Job       *Job
	StartedAt time.Time
}

// JobResult is the outcome of ingesting one file.
type JobResult struct {
	Job     *Job
	Run     *domain.Run
	Success bool
	Error   error
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Workers    int   `json:"workers"`
	ActiveJobs int   `json:"active_jobs"`
	QueueDepth int   `json:"queue_depth"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg *config.InboxConfig, ingester Ingester, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		config:      cfg,
		ingester:    ingester,
		logger:      logger,
		workerCount: workers,
		jobChan:     make(chan *Job, workers*4),
		resultChan:  make(chan *JobResult, workers),
		debounce:    make(map[string]*time.Timer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start creates the inbox directories, starts the workers, the watcher and the sweep.
func (s *Scheduler) Start() error {
	for _, dir := range []string{s.config.Dir, s.processedPath(), s.failedPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create inbox directory %s: %w", dir, err)
		}
	}

	workers := s.workerCount
	s.logger.Info("Starting inbox scheduler",
		zap.String("dir", s.config.Dir),
		zap.Int("workers", workers),
		zap.String("sweep_schedule", s.config.SweepSchedule),
	)

	for i := 0; i < workers; i++ {
		worker := NewWorker(i, s, s.logger)
		s.workers = append(s.workers, worker)
		s.wg.Add(1)
		go worker.Run(s.ctx, &s.wg)
	}

	s.wg.Add(1)
	go s.handleResults()

	if err := s.startWatcher(); err != nil {
		s.cancel()
		return err
	}

	if err := s.startSweep(); err != nil {
		s.cancel()
		_ = s.watcher.Close()
		return err
	}

	// Pick up anything left from before the restart.
	s.Sweep()

	s.logger.Info("Inbox scheduler started")
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping inbox scheduler")

	s.cancel()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}

	s.debounceMu.Lock()
	for path, timer := range s.debounce {
		timer.Stop()
		delete(s.debounce, path)
	}
	s.debounceMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Inbox scheduler stopped")
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("inbox scheduler shutdown timed out")
	}
}

// Enqueue queues path for ingestion unless it is already in flight.
// It reports whether the file was queued.
func (s *Scheduler) Enqueue(path string) bool {
	if !isLogFile(path) {
		return false
	}

	job := &Job{Path: path, EnqueuedAt: time.Now()}
	if _, loaded := s.activeJobs.LoadOrStore(path, &RunningJob{Job: job}); loaded {
		s.logger.Debug("Inbox file already queued", zap.String("path", path))
		return false
	}

	select {
	case s.jobChan <- job:
		s.logger.Debug("Queued inbox file", zap.String("path", path))
		return true
	case <-s.ctx.Done():
		s.activeJobs.Delete(path)
		return false
	default:
		// The next sweep picks it up again.
		s.activeJobs.Delete(path)
		s.logger.Warn("Inbox queue full, deferring file", zap.String("path", path))
		return false
	}
}

// Sweep enqueues every log file currently sitting in the inbox.
func (s *Scheduler) Sweep() {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		s.logger.Error("Failed to read inbox directory",
			zap.String("dir", s.config.Dir),
			zap.Error(err),
		)
		return
	}

	queued := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if s.Enqueue(filepath.Join(s.config.Dir, entry.Name())) {
			queued++
		}
	}

	if queued > 0 {
		s.logger.Info("Inbox sweep queued files", zap.Int("count", queued))
	}
}

// handleResults moves finished files out of the inbox.
func (s *Scheduler) handleResults() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case result := <-s.resultChan:
			s.processResult(result)
		}
	}
}

func (s *Scheduler) processResult(result *JobResult) {
	defer s.activeJobs.Delete(result.Job.Path)

	if result.Success {
		s.processed.Add(1)
		if _, err := s.moveFile(result.Job.Path, s.processedPath()); err != nil {
			s.logger.Error("Failed to move processed file",
				zap.String("path", result.Job.Path),
				zap.Error(err),
			)
		}
		s.logger.Info("Inbox file ingested",
			zap.String("path", result.Job.Path),
			zap.String("run_id", result.Run.ID.String()),
			zap.Int("trades", result.Run.TotalTrades),
		)
		return
	}

	s.failed.Add(1)
	s.logger.Error("Inbox file failed",
		zap.String("path", result.Job.Path),
		zap.Int("attempts", result.Job.Attempt+1),
		zap.Error(result.Error),
	)

	if errors.Is(result.Error, context.Canceled) {
		// Shutdown interrupted the ingest; leave the file for the next start.
		return
	}
	if err := s.moveFailed(result.Job.Path, result.Error); err != nil {
		s.logger.Error("Failed to move failed file",
			zap.String("path", result.Job.Path),
			zap.Error(err),
		)
	}
}

// moveFile moves path into dir, adding a timestamp suffix on collision.
func (s *Scheduler) moveFile(path, dir string) (string, error) {
	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s.%s%s",
			strings.TrimSuffix(dest, ext), time.Now().UTC().Format("20060102T150405.000000000"), ext)
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}
	return dest, nil
}

// moveFailed moves path to failed/ and writes the error next to it.
func (s *Scheduler) moveFailed(path string, cause error) error {
	dest, err := s.moveFile(path, s.failedPath())
	if err != nil {
		return err
	}
	if cause == nil {
		return nil
	}
	if err := os.WriteFile(dest+".error", []byte(cause.Error()+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write error file: %w", err)
	}
	return nil
}

// GetStats returns scheduler statistics.
func (s *Scheduler) GetStats() Stats {
	active := 0
	s.activeJobs.Range(func(_, _ interface{}) bool {
		active++
		return true
	})

	return Stats{
		Workers:    len(s.workers),
		ActiveJobs: active,
		QueueDepth: len(s.jobChan),
		Processed:  s.processed.Load(),
		Failed:     s.failed.Load(),
		Retried:    s.retried.Load(),
	}
}

func (s *Scheduler) processedPath() string {
	return filepath.Join(s.config.Dir, processedDir)
}

func (s *Scheduler) failedPath() string {
	return filepath.Join(s.config.Dir, failedDir)
}

// isLogFile accepts .log and .txt files that are not hidden or temporary.
func isLogFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") || strings.HasSuffix(name, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".log", ".txt":
		return true
	default:
		return false
	}
}

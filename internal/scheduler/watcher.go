package scheduler

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// startWatcher watches the inbox directory for new and rewritten files.
func (s *Scheduler) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	if err := watcher.Add(s.config.Dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.config.Dir, err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

func (s *Scheduler) watchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				s.schedule(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Inbox watcher error", zap.Error(err))
		}
	}
}

// schedule enqueues path once it has been quiet for debounceDelay.
func (s *Scheduler) schedule(path string) {
	if !isLogFile(path) {
		return
	}

	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if timer, ok := s.debounce[path]; ok {
		timer.Reset(debounceDelay)
		return
	}
	s.debounce[path] = time.AfterFunc(debounceDelay, func() {
		s.debounceMu.Lock()
		delete(s.debounce, path)
		s.debounceMu.Unlock()

		if ctxDone(s.ctx) {
			return
		}
		s.Enqueue(path)
	})
}

// startSweep registers the periodic inbox sweep.
func (s *Scheduler) startSweep() error {
	spec := s.config.SweepSchedule
	if spec == "" {
		spec = "@every 1m"
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

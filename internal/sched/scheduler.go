package sched

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs named periodic jobs, each on its own goroutine, all stopped
// together by Stop. Jobs do not support per-run cancellation; a job scheduled
// while Stop is in flight simply never starts.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(clock Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Every schedules fn to run once per interval until Stop.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ticker := s.clock.NewTicker(interval)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				fn()
			case <-s.stop:
				return
			}
		}
	}()

	s.logger.Debug("scheduled periodic job",
		zap.String("job", name),
		zap.Duration("interval", interval))
}

// Stop halts every job and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
}

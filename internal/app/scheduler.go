package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// Scheduler periodically queues traversals of every approved channel
type Scheduler struct {
	queue     domain.TaskQueue
	channels  []string
	config    *domain.TraversalConfig
	logger    *zap.Logger
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	workerWg  sync.WaitGroup
	lastRunAt time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(queue domain.TaskQueue, channels []string, config *domain.TraversalConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:    queue,
		channels: channels,
		config:   config,
		logger:   logger,
	}
}

// Start runs one round immediately and then one per schedule interval
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	if s.config.ScheduleInterval <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("schedule interval must be positive")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.workerWg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.workerWg.Wait()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastRunAt returns when the last round was queued
func (s *Scheduler) LastRunAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunAt
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.workerWg.Done()

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.ScheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce queues one catch-up traversal per channel, plus one backfill when
// enabled. It returns the number of tasks queued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	directions := []domain.Direction{domain.DirectionCatchUp}
	if s.config.BackfillEnabled {
		directions = append(directions, domain.DirectionBackfill)
	}

	queued := 0
	for _, channelID := range s.channels {
		for _, direction := range directions {
			if err := s.queue.Enqueue(ctx, domain.NewTraverseTask(channelID, direction), 0); err != nil {
				s.logger.Error("Failed to schedule traversal",
					zap.String("channel_id", channelID),
					zap.String("direction", string(direction)),
					zap.Error(err))
				continue
			}
			queued++
		}
	}

	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("traversals_scheduled",
		zap.Int("channels", len(s.channels)),
		zap.Int("tasks", queued))
	return queued
}

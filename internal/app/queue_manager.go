package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
	"github.com/yourusername/embed-archiver/internal/telemetry"
)

// Traverser runs traversal invocations
type Traverser interface {
	Traverse(ctx context.Context, task domain.TraverseTask) (*TraversalResult, error)
}

// Archiver processes archive work-items
type Archiver interface {
	Process(ctx context.Context, item domain.ArchiveWorkItem) (*ArchiveOutcome, error)
}

// consumer is the worker pool of one logical queue
type consumer struct {
	queue    domain.QueueName
	size     int
	pool     *workerpool.WorkerPool
	mu       sync.Mutex
	inflight int
}

func (c *consumer) free() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size - c.inflight
}

func (c *consumer) add(delta int) {
	c.mu.Lock()
	c.inflight += delta
	c.mu.Unlock()
}

// QueueManager consumes the traverse and archive queues
type QueueManager struct {
	queue     domain.TaskQueue
	traverser Traverser
	archiver  Archiver
	config    *domain.QueueConfig
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	consumers []*consumer
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	workerWg  sync.WaitGroup
	tasksWg   sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	queue domain.TaskQueue,
	traverser Traverser,
	archiver Archiver,
	config *domain.QueueConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *QueueManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	qm := &QueueManager{
		queue:     queue,
		traverser: traverser,
		archiver:  archiver,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
	qm.consumers = qm.newConsumers()
	return qm
}

func (qm *QueueManager) newConsumers() []*consumer {
	traverseSize := max(qm.config.TraversalConcurrency, 1)
	archiveSize := max(qm.config.ArchiveConcurrency, 1)
	return []*consumer{
		{queue: domain.QueueTraverse, size: traverseSize, pool: workerpool.New(traverseSize)},
		{queue: domain.QueueArchive, size: archiveSize, pool: workerpool.New(archiveSize)},
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.stopChan = make(chan struct{})
	qm.mu.Unlock()

	qm.logger.Info("queue_started",
		zap.Int("traversal_concurrency", qm.consumers[0].size),
		zap.Int("archive_concurrency", qm.consumers[1].size))

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops polling and waits for in-flight tasks to finish
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	qm.mu.Unlock()

	close(qm.stopChan)
	qm.workerWg.Wait()

	for _, c := range qm.consumers {
		c.pool.StopWait()
	}
	qm.consumers = qm.newConsumers()

	qm.logger.Info("queue_stopped")
	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// Stats returns queue statistics
func (qm *QueueManager) Stats(ctx context.Context) (map[domain.QueueName]*domain.QueueStats, error) {
	return qm.queue.Stats(ctx)
}

func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			qm.logger.Info("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-qm.stopChan:
			qm.logger.Info("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			qm.poll(ctx)
		}
	}
}

// poll leases as many tasks as each pool has free workers and submits them
func (qm *QueueManager) poll(ctx context.Context) {
	for _, c := range qm.consumers {
		free := c.free()
		if free <= 0 {
			continue
		}

		leased, err := qm.queue.Lease(ctx, c.queue, free)
		if err != nil {
			qm.logger.Error("Failed to lease tasks",
				zap.String("queue", string(c.queue)),
				zap.Error(err))
			continue
		}

		for _, lt := range leased {
			c.add(1)
			qm.tasksWg.Add(1)
			task := lt
			owner := c
			owner.pool.Submit(func() {
				defer qm.tasksWg.Done()
				defer owner.add(-1)
				qm.handle(ctx, task)
			})
		}
	}
}

// handle runs one leased task, acknowledging it on success and releasing it
// for redelivery on failure
func (qm *QueueManager) handle(ctx context.Context, lt *domain.LeasedTask) {
	queue := string(lt.Task.Queue())
	qm.logger.Debug("task_started",
		zap.String("id", lt.ID),
		zap.String("kind", string(lt.Task.Kind)),
		zap.Int("attempt", lt.Attempts))

	if err := qm.Dispatch(ctx, lt.Task); err != nil {
		qm.metrics.TaskProcessed(queue, "released")
		qm.logger.Warn("task_failed",
			zap.String("id", lt.ID),
			zap.String("kind", string(lt.Task.Kind)),
			zap.Int("attempt", lt.Attempts),
			zap.Error(err))
		if relErr := qm.queue.Release(ctx, lt.ID, qm.config.RetryDelay, err); relErr != nil {
			qm.logger.Error("Failed to release task", zap.String("id", lt.ID), zap.Error(relErr))
		}
		return
	}

	if err := qm.queue.Ack(ctx, lt.ID); err != nil {
		qm.logger.Error("Failed to ack task", zap.String("id", lt.ID), zap.Error(err))
		return
	}
	qm.metrics.TaskProcessed(queue, "acked")
	qm.logger.Debug("task_completed", zap.String("id", lt.ID))
}

// Dispatch runs a task with the component that owns its kind
func (qm *QueueManager) Dispatch(ctx context.Context, task domain.Task) error {
	switch task.Kind {
	case domain.TaskTraverse:
		_, err := qm.traverser.Traverse(ctx, *task.Traverse)
		return err
	case domain.TaskArchive:
		_, err := qm.archiver.Process(ctx, *task.Archive)
		return err
	default:
		return fmt.Errorf("unknown task kind: %q", task.Kind)
	}
}

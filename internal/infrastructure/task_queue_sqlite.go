package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// TaskStatus represents the state of a queued task
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusLeased  TaskStatus = "leased"
	TaskStatusDead    TaskStatus = "dead"
)

// QueueTask is one row of the task table
type QueueTask struct {
	ID        string           `gorm:"primaryKey"`
	Queue     domain.QueueName `gorm:"index:idx_queue_visible,priority:1;not null"`
	Kind      domain.TaskKind  `gorm:"not null"`
	Payload   string           `gorm:"type:text;not null"`
	DedupKey  string           `gorm:"index"`
	Status    TaskStatus       `gorm:"index:idx_queue_visible,priority:2;not null"`
	Attempts  int              `gorm:"not null;default:0"`
	VisibleAt time.Time        `gorm:"index:idx_queue_visible,priority:3;not null"`
	LastError string           `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the gorm table name
func (QueueTask) TableName() string {
	return "queue_tasks"
}

// SQLiteTaskQueue implements TaskQueue on a SQLite table.
// Delivery is at-least-once: a lease that is neither acked nor released
// expires and the task becomes visible again.
type SQLiteTaskQueue struct {
	db           *gorm.DB
	leaseTimeout time.Duration
	maxAttempts  int
	now          func() time.Time
}

// NewSQLiteTaskQueue creates a task queue and migrates its table
func NewSQLiteTaskQueue(db *gorm.DB, config *domain.QueueConfig) (*SQLiteTaskQueue, error) {
	if err := db.AutoMigrate(&QueueTask{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteTaskQueue{
		db:           db,
		leaseTimeout: config.LeaseTimeout,
		maxAttempts:  config.MaxAttempts,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enqueue adds a task that becomes visible after delay. A task whose dedup key
// matches a pending task is dropped; the check is not atomic with the insert.
func (q *SQLiteTaskQueue) Enqueue(ctx context.Context, task domain.Task, delay time.Duration) error {
	payload, err := domain.EncodeTask(task)
	if err != nil {
		return err
	}

	db := q.db.WithContext(ctx)
	dedupKey := task.DedupKey()
	if dedupKey != "" {
		var count int64
		err := db.Model(&QueueTask{}).
			Where("dedup_key = ? AND status = ?", dedupKey, TaskStatusPending).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check duplicate task: %w", err)
		}
		if count > 0 {
			return nil
		}
	}

	now := q.now()
	row := &QueueTask{
		ID:        uuid.New().String(),
		Queue:     task.Queue(),
		Kind:      task.Kind,
		Payload:   payload,
		DedupKey:  dedupKey,
		Status:    TaskStatusPending,
		VisibleAt: now.Add(delay),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// notHeld skips rows whose dedup key is held by another unexpired lease
const notHeld = `NOT (COALESCE(queue_tasks.dedup_key, '') <> '' AND EXISTS (
	SELECT 1 FROM queue_tasks AS held
	WHERE held.dedup_key = queue_tasks.dedup_key
	AND held.id <> queue_tasks.id
	AND held.status = ? AND held.visible_at > ?))`

// Lease hands out up to n visible tasks of a queue. A task is held back while
// another task with the same dedup key is leased, so one channel is never
// traversed twice in the same direction at once. Tasks whose payload no
// longer decodes, or which exhausted their attempts, are marked dead instead.
func (q *SQLiteTaskQueue) Lease(ctx context.Context, queue domain.QueueName, n int) ([]*domain.LeasedTask, error) {
	if n <= 0 {
		return nil, nil
	}

	var leased []*domain.LeasedTask
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := q.now()

		var rows []*QueueTask
		err := tx.Where("queue = ? AND status IN ? AND visible_at <= ?",
			queue, []TaskStatus{TaskStatusPending, TaskStatusLeased}, now).
			Where(notHeld, TaskStatusLeased, now).
			Order("visible_at ASC, created_at ASC").
			Limit(n).
			Find(&rows).Error
		if err != nil {
			return err
		}

		taken := make(map[string]bool)
		for _, row := range rows {
			if row.DedupKey != "" {
				if taken[row.DedupKey] {
					continue
				}
				taken[row.DedupKey] = true
			}

			if q.maxAttempts > 0 && row.Attempts >= q.maxAttempts {
				if err := q.markDead(tx, row, "lease expired after final attempt"); err != nil {
					return err
				}
				continue
			}

			task, err := domain.DecodeTask(row.Payload)
			if err != nil {
				if err := q.markDead(tx, row, err.Error()); err != nil {
					return err
				}
				continue
			}

			row.Attempts++
			row.Status = TaskStatusLeased
			row.VisibleAt = now.Add(q.leaseTimeout)
			row.UpdatedAt = now
			if err := tx.Save(row).Error; err != nil {
				return err
			}

			leased = append(leased, &domain.LeasedTask{
				ID:       row.ID,
				Attempts: row.Attempts,
				Task:     task,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lease tasks from %s: %w", queue, err)
	}
	return leased, nil
}

// Ack removes a processed task
func (q *SQLiteTaskQueue) Ack(ctx context.Context, id string) error {
	if err := q.db.WithContext(ctx).Delete(&QueueTask{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to ack task %s: %w", id, err)
	}
	return nil
}

// Release makes a leased task visible again after delay, or marks it dead
// once it has used all its attempts
func (q *SQLiteTaskQueue) Release(ctx context.Context, id string, delay time.Duration, cause error) error {
	db := q.db.WithContext(ctx)

	var row QueueTask
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to find task %s: %w", id, err)
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	if q.maxAttempts > 0 && row.Attempts >= q.maxAttempts {
		return q.markDead(db, &row, lastError)
	}

	now := q.now()
	row.Status = TaskStatusPending
	row.VisibleAt = now.Add(delay)
	row.LastError = lastError
	row.UpdatedAt = now
	if err := db.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to release task %s: %w", id, err)
	}
	return nil
}

// Stats returns per-queue counters
func (q *SQLiteTaskQueue) Stats(ctx context.Context) (map[domain.QueueName]*domain.QueueStats, error) {
	stats := map[domain.QueueName]*domain.QueueStats{
		domain.QueueTraverse: {},
		domain.QueueArchive:  {},
	}

	counts := []struct {
		Queue  domain.QueueName
		Status TaskStatus
		Count  int64
	}{}
	if err := q.db.WithContext(ctx).Model(&QueueTask{}).
		Select("queue, status, count(*) as count").
		Group("queue, status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	for _, c := range counts {
		s, ok := stats[c.Queue]
		if !ok {
			s = &domain.QueueStats{}
			stats[c.Queue] = s
		}
		switch c.Status {
		case TaskStatusPending:
			s.Pending = c.Count
		case TaskStatusLeased:
			s.Leased = c.Count
		case TaskStatusDead:
			s.Dead = c.Count
		}
	}
	return stats, nil
}

// DeadTasks lists tasks that will not be retried
func (q *SQLiteTaskQueue) DeadTasks(ctx context.Context, queue domain.QueueName) ([]*QueueTask, error) {
	var rows []*QueueTask
	err := q.db.WithContext(ctx).
		Where("queue = ? AND status = ?", queue, TaskStatusDead).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}

func (q *SQLiteTaskQueue) markDead(db *gorm.DB, row *QueueTask, reason string) error {
	row.Status = TaskStatusDead
	row.LastError = reason
	row.UpdatedAt = q.now()
	if err := db.Save(row).Error; err != nil {
		return fmt.Errorf("failed to mark task %s dead: %w", row.ID, err)
	}
	return nil
}

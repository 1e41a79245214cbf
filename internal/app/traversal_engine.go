package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
	"github.com/yourusername/embed-archiver/internal/telemetry"
)

// StopReason tells why a traversal invocation ended
type StopReason string

const (
	StopInitialized  StopReason = "initialized"    // first page of a new channel
	StopBudget       StopReason = "budget"         // request budget spent, continuation queued
	StopRateLimited  StopReason = "rate_limited"   // upstream asked us to back off, continuation queued after the reset
	StopEndOfHistory StopReason = "end_of_history" // empty page
	StopBackfillDone StopReason = "backfill_done"  // nothing left to backfill
)

// TraversalResult summarizes one traversal invocation
type TraversalResult struct {
	ChannelID string                     `json:"channel_id"`
	Direction domain.Direction           `json:"direction"`
	Reason    StopReason                 `json:"reason"`
	Requests  int                        `json:"requests"`
	Scanned   int                        `json:"scanned"`
	Emitted   int                        `json:"emitted"`
	Continued bool                       `json:"continued"`
	Cursor    *domain.ChannelCursorState `json:"cursor,omitempty"`
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TraversalEngine walks a channel's history one invocation at a time.
// Each invocation works on its own copy of the cursor and writes it once at
// the end; a failed invocation writes nothing.
type TraversalEngine struct {
	lister  domain.MessageLister
	cursors domain.CursorStore
	queue   domain.TaskQueue
	config  *domain.TraversalConfig
	metrics *telemetry.Metrics
	logger  *zap.Logger
	sleep   Sleeper
}

// NewTraversalEngine creates a new traversal engine
func NewTraversalEngine(
	lister domain.MessageLister,
	cursors domain.CursorStore,
	queue domain.TaskQueue,
	config *domain.TraversalConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *TraversalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraversalEngine{
		lister:  lister,
		cursors: cursors,
		queue:   queue,
		config:  config,
		metrics: metrics,
		logger:  logger,
		sleep:   SleepContext,
	}
}

// WithSleeper replaces the sleeper, for tests
func (e *TraversalEngine) WithSleeper(sleep Sleeper) *TraversalEngine {
	e.sleep = sleep
	return e
}

// Traverse runs one invocation for a channel and direction
func (e *TraversalEngine) Traverse(ctx context.Context, task domain.TraverseTask) (*TraversalResult, error) {
	if !domain.ValidateDirection(task.Direction) {
		return nil, fmt.Errorf("invalid direction: %s", task.Direction)
	}

	stored, err := e.cursors.Get(ctx, task.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor of channel %s: %w", task.ChannelID, err)
	}

	var result *TraversalResult
	if state, ok := stored.Get(); !ok {
		result, err = e.initialize(ctx, task)
	} else if task.Direction == domain.DirectionBackfill && state.BackfillDone {
		result = &TraversalResult{
			ChannelID: task.ChannelID,
			Direction: task.Direction,
			Reason:    StopBackfillDone,
			Cursor:    state,
		}
	} else {
		result, err = e.walk(ctx, task, state.Clone())
	}

	if err != nil {
		e.metrics.TraversalFailed(string(task.Direction))
		e.logger.Error("Traversal failed",
			zap.String("channel_id", task.ChannelID),
			zap.String("direction", string(task.Direction)),
			zap.Error(err))
		return nil, err
	}

	e.metrics.TraversalStopped(string(task.Direction), string(result.Reason))
	e.logger.Info("Traversal finished",
		zap.String("channel_id", result.ChannelID),
		zap.String("direction", string(result.Direction)),
		zap.String("reason", string(result.Reason)),
		zap.Int("requests", result.Requests),
		zap.Int("scanned", result.Scanned),
		zap.Int("emitted", result.Emitted),
		zap.Bool("continued", result.Continued))
	return result, nil
}

// initialize seeds a new channel's cursor from its most recent page
func (e *TraversalEngine) initialize(ctx context.Context, task domain.TraverseTask) (*TraversalResult, error) {
	result := &TraversalResult{ChannelID: task.ChannelID, Direction: task.Direction}
	state := domain.NewChannelCursorState(task.ChannelID)

	page, err := e.fetch(ctx, task, domain.MessageQuery{Limit: e.config.InitialPageSize})
	if err != nil {
		return nil, err
	}
	result.Requests++

	if page.RateLimited() {
		// nothing to persist yet; the next scheduled run initializes instead
		if err := e.backoff(ctx, task, e.boundedWait(page.RateLimit.ResetAfter)); err != nil {
			return nil, err
		}
		result.Reason = StopRateLimited
		return result, nil
	}

	messages, err := page.Result.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize channel %s: %w", task.ChannelID, err)
	}

	for i := range messages {
		if err := e.emit(ctx, task, &messages[i], result); err != nil {
			return nil, err
		}
		state.Widen(messages[i].ID)
	}

	if err := e.cursors.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save cursor of channel %s: %w", task.ChannelID, err)
	}
	result.Reason = StopInitialized
	result.Cursor = state
	return result, nil
}

// walk pages through history in the task's direction until the budget is
// spent, upstream throttles us, or the history runs out
func (e *TraversalEngine) walk(ctx context.Context, task domain.TraverseTask, state *domain.ChannelCursorState) (*TraversalResult, error) {
	result := &TraversalResult{ChannelID: task.ChannelID, Direction: task.Direction}
	backfill := task.Direction == domain.DirectionBackfill
	// rest of an upstream reset not waited out in-process
	var resumeAfter time.Duration

	for result.Reason == "" && result.Requests < e.config.MaxRequestsPerInvocation {
		if result.Requests > 0 {
			if err := e.sleep(ctx, e.config.PageDelay); err != nil {
				return nil, err
			}
		}

		query := domain.MessageQuery{Limit: e.config.PageSize}
		if backfill {
			query.Before = state.Earliest()
		} else {
			query.After = state.Latest()
		}

		page, err := e.fetch(ctx, task, query)
		if err != nil {
			return nil, err
		}
		result.Requests++

		if page.RateLimited() {
			wait := e.boundedWait(page.RateLimit.ResetAfter)
			if err := e.backoff(ctx, task, wait); err != nil {
				return nil, err
			}
			resumeAfter = page.RateLimit.ResetAfter - wait
			result.Reason = StopRateLimited
			break
		}

		messages, err := page.Result.Get()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages of channel %s: %w", task.ChannelID, err)
		}

		for i := range messages {
			if err := e.emit(ctx, task, &messages[i], result); err != nil {
				return nil, err
			}
			state.Advance(task.Direction, messages[i].ID)
		}

		if page.RateLimit.Exhausted(e.config.RateLimitThreshold) {
			wait := e.boundedWait(page.RateLimit.ResetAfter)
			if err := e.backoff(ctx, task, wait); err != nil {
				return nil, err
			}
			if page.RateLimit.ResetAfter > e.config.RateLimitTolerance {
				resumeAfter = page.RateLimit.ResetAfter - wait
				result.Reason = StopRateLimited
			}
		}

		if len(messages) == 0 {
			if backfill {
				state.MarkBackfillDone()
			}
			result.Reason = StopEndOfHistory
		}
	}

	if result.Reason == "" {
		result.Reason = StopBudget
	}

	if err := e.cursors.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save cursor of channel %s: %w", task.ChannelID, err)
	}
	result.Cursor = state

	var err error
	switch result.Reason {
	case StopBudget:
		// the delay gives the cursor write time to become visible to the next run
		err = e.continueLater(ctx, task, e.config.ContinuationDelay)
	case StopRateLimited:
		err = e.continueLater(ctx, task, max(resumeAfter, e.config.ContinuationDelay))
	default:
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Continued = true
	return result, nil
}

// boundedWait caps an in-process rate-limit wait at the tolerance so a
// traversal never outlives its queue lease
func (e *TraversalEngine) boundedWait(resetAfter time.Duration) time.Duration {
	return min(resetAfter, e.config.RateLimitTolerance)
}

func (e *TraversalEngine) continueLater(ctx context.Context, task domain.TraverseTask, delay time.Duration) error {
	if err := e.queue.Enqueue(ctx, domain.NewTraverseTask(task.ChannelID, task.Direction), delay); err != nil {
		return fmt.Errorf("failed to enqueue continuation of channel %s: %w", task.ChannelID, err)
	}
	return nil
}

func (e *TraversalEngine) fetch(ctx context.Context, task domain.TraverseTask, query domain.MessageQuery) (*domain.MessagePage, error) {
	page, err := e.lister.ListMessages(ctx, task.ChannelID, query)
	if err != nil {
		e.metrics.PageFetched(string(task.Direction), "transport_error")
		return nil, err
	}
	e.metrics.PageFetched(string(task.Direction), strconv.Itoa(page.Status))
	return page, nil
}

func (e *TraversalEngine) backoff(ctx context.Context, task domain.TraverseTask, d time.Duration) error {
	e.metrics.RateLimitWait(string(task.Direction))
	e.logger.Debug("Rate limited, waiting",
		zap.String("channel_id", task.ChannelID),
		zap.Duration("reset_after", d))
	return e.sleep(ctx, d)
}

// emit queues an archive work-item for messages that carry archivable media
func (e *TraversalEngine) emit(ctx context.Context, task domain.TraverseTask, message *domain.Message, result *TraversalResult) error {
	result.Scanned++
	if !message.HasArchivableMedia() {
		return nil
	}
	item := domain.ArchiveWorkItem{ChannelID: task.ChannelID, Message: *message}
	if err := e.queue.Enqueue(ctx, domain.NewArchiveTask(item), 0); err != nil {
		return fmt.Errorf("failed to enqueue message %s: %w", message.ID, err)
	}
	result.Emitted++
	e.metrics.WorkItemEmitted(string(task.Direction))
	return nil
}

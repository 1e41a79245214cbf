package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/embed-archiver/internal/domain"
)

type engineFixture struct {
	engine  *TraversalEngine
	lister  *fakeLister
	cursors *memCursorStore
	queue   *memQueue
	sleeper *recordingSleeper
}

func newEngineFixture(pages ...*domain.MessagePage) *engineFixture {
	config := domain.DefaultConfig().Traversal
	f := &engineFixture{
		lister:  &fakeLister{pages: pages},
		cursors: newMemCursorStore(),
		queue:   newMemQueue(),
		sleeper: &recordingSleeper{},
	}
	f.engine = NewTraversalEngine(f.lister, f.cursors, f.queue, &config, nil, nil).
		WithSleeper(f.sleeper.Sleep)
	return f
}

func (f *engineFixture) seed(earliest, latest domain.Snowflake, backfillDone bool) {
	f.cursors.states["42"] = domain.ChannelCursorState{
		ChannelID:       "42",
		EarliestArchive: earliest,
		LatestArchive:   latest,
		BackfillDone:    backfillDone,
	}
}

func catchUp() domain.TraverseTask {
	return domain.TraverseTask{ChannelID: "42", Direction: domain.DirectionCatchUp}
}

func backfill() domain.TraverseTask {
	return domain.TraverseTask{ChannelID: "42", Direction: domain.DirectionBackfill}
}

func TestTraverse_InitializesNewChannel(t *testing.T) {
	f := newEngineFixture(okPage("105", "110", "100"))

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopInitialized, result.Reason)
	assert.Equal(t, 1, result.Requests)
	assert.Equal(t, 3, result.Emitted)
	assert.False(t, result.Continued)

	require.Len(t, f.lister.queries, 1)
	assert.Equal(t, domain.MessageQuery{Limit: 100}, f.lister.queries[0])

	state, ok := f.cursors.get("42")
	require.True(t, ok)
	assert.Equal(t, domain.Snowflake("100"), state.EarliestArchive)
	assert.Equal(t, domain.Snowflake("110"), state.LatestArchive)
	assert.False(t, state.BackfillDone)

	items := f.queue.ofKind(domain.TaskArchive)
	require.Len(t, items, 3)
	assert.Equal(t, "42", items[0].Task.Archive.ChannelID)
	assert.Empty(t, f.queue.ofKind(domain.TaskTraverse))
}

func TestTraverse_InitializationComparesIdsNumerically(t *testing.T) {
	f := newEngineFixture(okPage("99", "1000", "175928847299117063"))

	_, err := f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("99"), state.EarliestArchive)
	assert.Equal(t, domain.Snowflake("175928847299117063"), state.LatestArchive)
}

func TestTraverse_MessagesWithoutMediaAdvanceCursorOnly(t *testing.T) {
	page := okPage("120")
	messages := page.Result.MustGet()
	messages = append(messages, domain.Message{ID: "130", Content: "just text"})
	page.Result = mo.Ok(messages)

	f := newEngineFixture(page, okPage())
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Emitted)
	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("130"), state.LatestArchive)
}

func TestTraverse_CatchUpEmptyPage(t *testing.T) {
	f := newEngineFixture(okPage())
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopEndOfHistory, result.Reason)
	assert.Equal(t, 1, result.Requests)
	assert.False(t, result.Continued)
	assert.Equal(t, domain.Snowflake("110"), f.lister.queries[0].After)
	assert.Empty(t, f.lister.queries[0].Before)

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("100"), state.EarliestArchive)
	assert.Equal(t, domain.Snowflake("110"), state.LatestArchive)
	assert.False(t, state.BackfillDone)
	assert.Empty(t, f.queue.ofKind(domain.TaskTraverse))
}

func TestTraverse_BackfillEmptyPageMarksDone(t *testing.T) {
	f := newEngineFixture(okPage())
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)
	assert.Equal(t, StopEndOfHistory, result.Reason)
	assert.Equal(t, domain.Snowflake("100"), f.lister.queries[0].Before)

	state, _ := f.cursors.get("42")
	assert.True(t, state.BackfillDone)

	// the next backfill is a no-op
	result, err = f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)
	assert.Equal(t, StopBackfillDone, result.Reason)
	assert.Zero(t, result.Requests)
	assert.Len(t, f.lister.queries, 1)
	assert.Equal(t, 1, f.cursors.puts)
}

func TestTraverse_BackfillDoneDoesNotBlockCatchUp(t *testing.T) {
	f := newEngineFixture(okPage("111"), okPage())
	f.seed("100", "110", true)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)
	assert.Equal(t, StopEndOfHistory, result.Reason)

	state, _ := f.cursors.get("42")
	assert.True(t, state.BackfillDone)
	assert.Equal(t, domain.Snowflake("111"), state.LatestArchive)
}

func TestTraverse_ShortRateLimitWaitContinues(t *testing.T) {
	limited := okPage("111")
	limited.RateLimit = domain.RateLimit{Limit: 5, Remaining: 1, ResetAfter: 2 * time.Second}
	f := newEngineFixture(limited, okPage("112"), okPage())
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopEndOfHistory, result.Reason)
	assert.Equal(t, 3, result.Requests)
	assert.Contains(t, f.sleeper.sleeps, 2*time.Second)
	assert.Equal(t, domain.Snowflake("111"), f.lister.queries[1].After)

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("112"), state.LatestArchive)
}

func TestTraverse_LongRateLimitWaitStops(t *testing.T) {
	limited := okPage("111")
	limited.RateLimit = domain.RateLimit{Limit: 5, Remaining: 0, ResetAfter: 30 * time.Second}
	f := newEngineFixture(limited)
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimited, result.Reason)
	assert.Equal(t, 1, result.Requests)
	assert.Equal(t, 1, result.Emitted)
	assert.Equal(t, []time.Duration{5 * time.Second}, f.sleeper.sleeps, "in-process wait is capped at the tolerance")

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("111"), state.LatestArchive, "progress before the stop is kept")

	assert.True(t, result.Continued)
	continuations := f.queue.ofKind(domain.TaskTraverse)
	require.Len(t, continuations, 1)
	assert.Equal(t, 25*time.Second, continuations[0].Delay)
}

func TestTraverse_TooManyRequestsStops(t *testing.T) {
	throttled := errorPage(http.StatusTooManyRequests, `{"retry_after":1}`)
	throttled.RateLimit = domain.RateLimit{ResetAfter: time.Second}
	f := newEngineFixture(okPage("111"), throttled)
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimited, result.Reason)
	assert.Equal(t, 2, result.Requests)
	assert.Equal(t, []time.Duration{1234 * time.Millisecond, time.Second}, f.sleeper.sleeps)

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("111"), state.LatestArchive)

	// the reset was waited out, so the continuation only needs the usual delay
	assert.True(t, result.Continued)
	continuations := f.queue.ofKind(domain.TaskTraverse)
	require.Len(t, continuations, 1)
	assert.Equal(t, 3245*time.Millisecond, continuations[0].Delay)
}

func TestTraverse_LongThrottleIsNotSleptInProcess(t *testing.T) {
	throttled := errorPage(http.StatusTooManyRequests, `{"retry_after":3600}`)
	throttled.RateLimit = domain.RateLimit{ResetAfter: time.Hour}
	f := newEngineFixture(throttled)
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimited, result.Reason)
	require.Len(t, f.sleeper.sleeps, 1)
	assert.LessOrEqual(t, f.sleeper.sleeps[0], domain.DefaultConfig().Traversal.RateLimitTolerance)
	assert.Less(t, f.sleeper.sleeps[0], domain.DefaultConfig().Queue.LeaseTimeout)

	continuations := f.queue.ofKind(domain.TaskTraverse)
	require.Len(t, continuations, 1)
	assert.Equal(t, time.Hour-5*time.Second, continuations[0].Delay)
	assert.Equal(t, domain.DirectionCatchUp, continuations[0].Task.Traverse.Direction)
}

func TestTraverse_LongThrottleOnInitializationIsCapped(t *testing.T) {
	throttled := errorPage(http.StatusTooManyRequests, `{"retry_after":3600}`)
	throttled.RateLimit = domain.RateLimit{ResetAfter: time.Hour}
	f := newEngineFixture(throttled)

	result, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)

	assert.Equal(t, StopRateLimited, result.Reason)
	assert.Equal(t, []time.Duration{5 * time.Second}, f.sleeper.sleeps)
	_, ok := f.cursors.get("42")
	assert.False(t, ok)
	assert.Empty(t, f.queue.ofKind(domain.TaskTraverse))
}

func TestTraverse_ExhaustedEmptyPageStillWaits(t *testing.T) {
	empty := okPage()
	empty.RateLimit = domain.RateLimit{Limit: 5, Remaining: 0, ResetAfter: 2 * time.Second}
	f := newEngineFixture(empty)
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)

	assert.Equal(t, StopEndOfHistory, result.Reason)
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeper.sleeps)
	state, _ := f.cursors.get("42")
	assert.True(t, state.BackfillDone)
	assert.False(t, result.Continued)
}

func TestTraverse_MalformedPageAbortsWithoutCursorWrite(t *testing.T) {
	f := newEngineFixture(okPage("111"), errorPage(http.StatusOK, `{"message":"weird"}`))
	f.seed("100", "110", false)

	_, err := f.engine.Traverse(context.Background(), catchUp())
	require.Error(t, err)

	var apiErr *domain.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Zero(t, f.cursors.puts)
	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("110"), state.LatestArchive)
}

func TestTraverse_UpstreamErrorOnInitializationCreatesNoCursor(t *testing.T) {
	f := newEngineFixture(errorPage(http.StatusForbidden, `{"message":"Missing Access"}`))

	_, err := f.engine.Traverse(context.Background(), catchUp())
	require.Error(t, err)

	_, ok := f.cursors.get("42")
	assert.False(t, ok)
	assert.Empty(t, f.queue.ofKind(domain.TaskArchive))
}

func TestTraverse_TransportErrorAborts(t *testing.T) {
	f := newEngineFixture()
	f.lister.errs = []error{errBoom}
	f.seed("100", "110", false)

	_, err := f.engine.Traverse(context.Background(), backfill())
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, f.cursors.puts)
}

func TestTraverse_BudgetSchedulesContinuation(t *testing.T) {
	var pages []*domain.MessagePage
	for i := 0; i < 8; i++ {
		pages = append(pages, okPage(domain.Snowflake([]string{"99", "98", "97", "96", "95", "94", "93", "92"}[i])))
	}
	f := newEngineFixture(pages...)
	f.seed("100", "110", false)

	result, err := f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)

	assert.Equal(t, StopBudget, result.Reason)
	assert.Equal(t, 8, result.Requests)
	assert.True(t, result.Continued)

	// pacing only between requests
	paced := 0
	for _, d := range f.sleeper.sleeps {
		if d == 1234*time.Millisecond {
			paced++
		}
	}
	assert.Equal(t, 7, paced)

	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("92"), state.EarliestArchive)
	assert.False(t, state.BackfillDone)

	continuations := f.queue.ofKind(domain.TaskTraverse)
	require.Len(t, continuations, 1)
	assert.Equal(t, 3245*time.Millisecond, continuations[0].Delay)
	assert.Equal(t, domain.DirectionBackfill, continuations[0].Task.Traverse.Direction)
	assert.Equal(t, "42", continuations[0].Task.Traverse.ChannelID)
}

func TestTraverse_CursorIsMonotonic(t *testing.T) {
	// an out-of-order page must never move the cursor backwards
	f := newEngineFixture(okPage("105"), okPage())
	f.seed("100", "110", false)

	_, err := f.engine.Traverse(context.Background(), catchUp())
	require.NoError(t, err)
	state, _ := f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("110"), state.LatestArchive)

	f = newEngineFixture(okPage("150"), okPage())
	f.seed("100", "110", false)

	_, err = f.engine.Traverse(context.Background(), backfill())
	require.NoError(t, err)
	state, _ = f.cursors.get("42")
	assert.Equal(t, domain.Snowflake("100"), state.EarliestArchive)
}

func TestTraverse_EnqueueFailureAbortsWithoutCursorWrite(t *testing.T) {
	f := newEngineFixture(okPage("111"))
	f.seed("100", "110", false)
	f.queue.enqueueErr = errBoom

	_, err := f.engine.Traverse(context.Background(), catchUp())
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, f.cursors.puts)
}

func TestTraverse_RejectsInvalidDirection(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.Traverse(context.Background(), domain.TraverseTask{ChannelID: "42", Direction: "sideways"})
	assert.Error(t, err)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), 0))
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

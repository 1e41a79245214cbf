package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// fakeLister replays scripted pages and records the queries it saw
type fakeLister struct {
	mu      sync.Mutex
	pages   []*domain.MessagePage
	errs    []error
	queries []domain.MessageQuery
}

func (f *fakeLister) ListMessages(ctx context.Context, channelID string, query domain.MessageQuery) (*domain.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.queries)
	f.queries = append(f.queries, query)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.pages) {
		return okPage(), nil
	}
	return f.pages[i], nil
}

func okPage(ids ...domain.Snowflake) *domain.MessagePage {
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		messages = append(messages, mediaMessage(id))
	}
	return &domain.MessagePage{
		Status:    http.StatusOK,
		RateLimit: domain.RateLimit{Limit: 5, Remaining: 4},
		Result:    mo.Ok(messages),
	}
}

func errorPage(status int, body string) *domain.MessagePage {
	return &domain.MessagePage{
		Status: status,
		Result: mo.Err[[]domain.Message](&domain.APIError{Status: status, Body: body}),
	}
}

func mediaMessage(id domain.Snowflake) domain.Message {
	return domain.Message{
		ID: id,
		Embeds: []domain.Embed{{
			URL: "https://example.com/post/" + string(id),
			Image: &domain.EmbedMedia{
				URL:      "https://media.example.com/" + string(id) + ".png",
				ProxyURL: "https://proxy.example.com/" + string(id) + ".png",
			},
		}},
	}
}

// memCursorStore is an in-memory CursorStore
type memCursorStore struct {
	mu     sync.Mutex
	states map[string]domain.ChannelCursorState
	puts   int
	putErr error
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{states: map[string]domain.ChannelCursorState{}}
}

func (m *memCursorStore) Get(ctx context.Context, channelID string) (mo.Option[*domain.ChannelCursorState], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[channelID]
	if !ok {
		return mo.None[*domain.ChannelCursorState](), nil
	}
	return mo.Some(&state), nil
}

func (m *memCursorStore) Put(ctx context.Context, state *domain.ChannelCursorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.states[state.ChannelID] = *state
	return nil
}

func (m *memCursorStore) get(channelID string) (domain.ChannelCursorState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[channelID]
	return state, ok
}

type enqueued struct {
	Task  domain.Task
	Delay time.Duration
}

// memQueue is an in-memory TaskQueue that hands tasks out in order
type memQueue struct {
	mu         sync.Mutex
	tasks      []enqueued
	leased     map[string]*domain.LeasedTask
	acked      []string
	released   []string
	nextID     int
	enqueueErr error
}

func newMemQueue() *memQueue {
	return &memQueue{leased: map[string]*domain.LeasedTask{}}
}

func (q *memQueue) Enqueue(ctx context.Context, task domain.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if err := task.Validate(); err != nil {
		return err
	}
	q.tasks = append(q.tasks, enqueued{Task: task, Delay: delay})
	return nil
}

func (q *memQueue) Lease(ctx context.Context, queue domain.QueueName, n int) ([]*domain.LeasedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.LeasedTask
	remaining := q.tasks[:0]
	for _, e := range q.tasks {
		if len(out) < n && e.Task.Queue() == queue {
			q.nextID++
			lt := &domain.LeasedTask{ID: fmt.Sprintf("task-%d", q.nextID), Attempts: 1, Task: e.Task}
			q.leased[lt.ID] = lt
			out = append(out, lt)
			continue
		}
		remaining = append(remaining, e)
	}
	q.tasks = remaining
	return out, nil
}

func (q *memQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.leased[id]; !ok {
		return domain.ErrNotFound
	}
	delete(q.leased, id)
	q.acked = append(q.acked, id)
	return nil
}

func (q *memQueue) Release(ctx context.Context, id string, delay time.Duration, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	lt, ok := q.leased[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(q.leased, id)
	q.released = append(q.released, id)
	q.tasks = append(q.tasks, enqueued{Task: lt.Task, Delay: delay})
	return nil
}

func (q *memQueue) Stats(ctx context.Context) (map[domain.QueueName]*domain.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := map[domain.QueueName]*domain.QueueStats{
		domain.QueueTraverse: {},
		domain.QueueArchive:  {},
	}
	for _, e := range q.tasks {
		stats[e.Task.Queue()].Pending++
	}
	for _, lt := range q.leased {
		stats[lt.Task.Queue()].Leased++
	}
	return stats, nil
}

func (q *memQueue) ofKind(kind domain.TaskKind) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, e := range q.tasks {
		if e.Task.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// memLedger is an in-memory ArchiveLedger
type memLedger struct {
	mu      sync.Mutex
	records map[domain.Snowflake]*domain.ArchiveRecord
	puts    int
	putErr  error
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[domain.Snowflake]*domain.ArchiveRecord{}}
}

func (l *memLedger) Exists(ctx context.Context, id domain.Snowflake) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[id]
	return ok, nil
}

func (l *memLedger) Put(ctx context.Context, record *domain.ArchiveRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.putErr != nil {
		return l.putErr
	}
	l.puts++
	l.records[record.MessageID] = record
	return nil
}

func (l *memLedger) Get(ctx context.Context, id domain.Snowflake) (mo.Option[*domain.ArchiveRecord], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return mo.None[*domain.ArchiveRecord](), nil
	}
	return mo.Some(record), nil
}

// fakeFetcher serves bodies by URL; unknown URLs fail with 404
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, primaryURL, backupURL string) (*domain.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, primaryURL)

	header := http.Header{}
	header.Set("Content-Type", "image/png")
	header.Set("Content-Length", "4")
	if body, ok := f.bodies[primaryURL]; ok {
		return &domain.FetchResult{URL: primaryURL, Body: body, Header: header}, nil
	}
	if body, ok := f.bodies[backupURL]; ok {
		return &domain.FetchResult{URL: backupURL, UsedBackup: true, Body: body, Header: header}, nil
	}
	return nil, &domain.FetchError{
		Primary: domain.FetchAttempt{URL: primaryURL, Status: http.StatusNotFound, Body: "not found"},
		Backup:  domain.FetchAttempt{URL: backupURL, Status: http.StatusForbidden, Body: "forbidden"},
	}
}

// memObjectStore is an in-memory ObjectStore
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]domain.ObjectMetadata
	err     error
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, meta: map[string]domain.ObjectMetadata{}}
}

func (s *memObjectStore) Put(ctx context.Context, key string, body []byte, meta domain.ObjectMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.objects[key] = body
	s.meta[key] = meta
	return nil
}

// recordingSleeper records requested sleeps without blocking
type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

var errBoom = errors.New("boom")

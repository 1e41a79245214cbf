//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/api"
	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
	"github.com/yourusername/embed-archiver/internal/infrastructure"
	"github.com/yourusername/embed-archiver/internal/telemetry"
	"github.com/yourusername/embed-archiver/pkg/logger"
)

const channelID = "42"

// fakeDiscord serves a fixed channel history, newest first
type fakeDiscord struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	queries  []string
}

func (f *fakeDiscord) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)

	if r.URL.Path != "/channels/"+channelID+"/messages" {
		http.NotFound(w, r)
		return
	}

	after := r.URL.Query().Get("after")
	before := r.URL.Query().Get("before")
	page := []map[string]interface{}{}
	for _, m := range f.messages {
		id := domain.Snowflake(m["id"].(string))
		if after != "" && id.Compare(domain.Snowflake(after)) <= 0 {
			continue
		}
		if before != "" && id.Compare(domain.Snowflake(before)) >= 0 {
			continue
		}
		page = append(page, m)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", "5")
	w.Header().Set("X-RateLimit-Remaining", "4")
	w.Header().Set("X-RateLimit-Reset-After", "1.0")
	_ = json.NewEncoder(w).Encode(page)
}

func imageMessage(id, url, proxyURL string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"channel_id": channelID,
		"content":    "look",
		"embeds": []map[string]interface{}{{
			"type":  "image",
			"url":   url,
			"image": map[string]interface{}{"url": url, "proxy_url": proxyURL},
		}},
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

type pipeline struct {
	discord  *fakeDiscord
	objects  *infrastructure.FilesystemObjectStore
	ledger   domain.ArchiveLedger
	cursors  domain.CursorStore
	lookup   *app.LookupService
	queueMgr *app.QueueManager
	server   *httptest.Server
}

func setupPipeline(t *testing.T) *pipeline {
	t.Helper()

	media := http.NewServeMux()
	media.HandleFunc("/cdn/a.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-a"))
	})
	media.HandleFunc("/cdn/b.png", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusForbidden)
	})
	media.HandleFunc("/proxy/b.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-b"))
	})
	mediaServer := httptest.NewServer(media)
	t.Cleanup(mediaServer.Close)

	discord := &fakeDiscord{messages: []map[string]interface{}{
		imageMessage("300", mediaServer.URL+"/cdn/b.png", mediaServer.URL+"/proxy/b.png"),
		{"id": "200", "channel_id": channelID, "content": "no embeds", "embeds": []interface{}{}},
		imageMessage("100", mediaServer.URL+"/cdn/a.png", mediaServer.URL+"/proxy/a.png"),
	}}
	discordServer := httptest.NewServer(discord)
	t.Cleanup(discordServer.Close)

	dir := t.TempDir()
	config := domain.DefaultConfig()
	config.Discord.Token = strings.Repeat("t", 59)
	config.Discord.APIBase = discordServer.URL
	config.Discord.Channels = []string{channelID}
	config.Queue.CheckInterval = 10 * time.Millisecond
	config.Archive.FetchJitter = 0
	config.Storage.PublicBaseURL = "https://archive.example.com"

	db, err := infrastructure.OpenSQLite(filepath.Join(dir, "archiver.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = infrastructure.CloseSQLite(db) })

	queue, err := infrastructure.NewSQLiteTaskQueue(db, &config.Queue)
	require.NoError(t, err)
	archiveKV, err := infrastructure.NewSQLiteKVStore(db, infrastructure.NamespaceArchive)
	require.NoError(t, err)
	cursorKV, err := infrastructure.NewSQLiteKVStore(db, infrastructure.NamespaceCursor)
	require.NoError(t, err)
	objects, err := infrastructure.NewFilesystemObjectStore(filepath.Join(dir, "media"))
	require.NoError(t, err)

	client, err := infrastructure.NewDiscordClient(&config.Discord, nil, nil)
	require.NoError(t, err)
	fetcher := infrastructure.NewHTTPMediaFetcher(&config.Archive, nil, nil)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	log := zap.NewNop()

	ledger := infrastructure.NewKVArchiveLedger(archiveKV)
	cursors := infrastructure.NewKVCursorStore(cursorKV)
	engine := app.NewTraversalEngine(client, cursors, queue, &config.Traversal, metrics, log).WithSleeper(noSleep)
	worker := app.NewDownloadWorker(ledger, fetcher, objects, &config.Archive, metrics, log).WithSleeper(noSleep)
	queueMgr := app.NewQueueManager(queue, engine, worker, &config.Queue, metrics, log)
	lookup := app.NewLookupService(ledger, cursors, queue, &config.Discord, log)

	router := api.SetupRouter(api.RouterConfig{
		Archives:      lookup,
		Queue:         queueMgr,
		Gatherer:      reg,
		PublicBaseURL: config.Storage.PublicBaseURL,
		LogsDir:       filepath.Join(dir, "logs"),
	}, logger.NewSingleLoggerAdapter(log))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &pipeline{
		discord:  discord,
		objects:  objects,
		ledger:   ledger,
		cursors:  cursors,
		lookup:   lookup,
		queueMgr: queueMgr,
		server:   server,
	}
}

func (p *pipeline) getJSON(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(p.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestPipeline_TraverseAndArchive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := setupPipeline(t)

	require.NoError(t, p.lookup.EnqueueTraversal(ctx, channelID, domain.DirectionCatchUp))
	require.NoError(t, p.queueMgr.Start(ctx))
	defer p.queueMgr.Stop()

	for _, id := range []domain.Snowflake{"100", "300"} {
		id := id
		assert.Eventually(t, func() bool {
			exists, err := p.ledger.Exists(ctx, id)
			return err == nil && exists
		}, 5*time.Second, 20*time.Millisecond, "message %s not archived", id)
	}

	exists, err := p.ledger.Exists(ctx, "200")
	require.NoError(t, err)
	assert.False(t, exists, "messages without embeds are never archived")

	stored, err := p.cursors.Get(ctx, channelID)
	require.NoError(t, err)
	cursor, ok := stored.Get()
	require.True(t, ok)
	assert.Equal(t, domain.Snowflake("100"), cursor.EarliestArchive)
	assert.Equal(t, domain.Snowflake("300"), cursor.LatestArchive)

	// the primary URL of 300 fails, so its media comes from the proxy
	status, body := p.getJSON(t, "/api/v1/archives/300")
	require.Equal(t, http.StatusOK, status)
	media := body["media"].([]interface{})
	require.Len(t, media, 1)
	link := media[0].(map[string]interface{})
	assert.Equal(t, true, link["used_backup"])
	assert.Contains(t, link["source_url"], "/proxy/b.png")
	assert.True(t, strings.HasPrefix(link["archive_url"].(string), "https://archive.example.com/42/300/"))

	record, err := p.ledger.Get(ctx, "300")
	require.NoError(t, err)
	path, err := p.objects.Path(record.MustGet().Media[0].StoredKey)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-b", string(data))

	status, body = p.getJSON(t, "/api/v1/archives/200?channel_id="+channelID)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(app.LookupPending), body["status"])
}

func TestPipeline_CatchUpPicksUpNewMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := setupPipeline(t)

	require.NoError(t, p.lookup.EnqueueTraversal(ctx, channelID, domain.DirectionCatchUp))
	require.NoError(t, p.queueMgr.Start(ctx))
	defer p.queueMgr.Stop()

	assert.Eventually(t, func() bool {
		exists, _ := p.ledger.Exists(ctx, "300")
		return exists
	}, 5*time.Second, 20*time.Millisecond)

	p.discord.mu.Lock()
	p.discord.messages = append([]map[string]interface{}{
		imageMessage("400", p.server.URL+"/missing.png", p.server.URL+"/missing-too.png"),
	}, p.discord.messages...)
	p.discord.mu.Unlock()

	require.NoError(t, p.lookup.EnqueueTraversal(ctx, channelID, domain.DirectionCatchUp))

	assert.Eventually(t, func() bool {
		exists, _ := p.ledger.Exists(ctx, "400")
		return exists
	}, 5*time.Second, 20*time.Millisecond)

	// both URLs of 400 fail: the record exists but only lists errors
	status, body := p.getJSON(t, "/api/v1/archives/400")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(app.LookupFailed), body["status"])

	p.discord.mu.Lock()
	defer p.discord.mu.Unlock()
	assert.Contains(t, p.discord.queries, fmt.Sprintf("after=300&limit=%d", domain.DefaultConfig().Traversal.PageSize))
}

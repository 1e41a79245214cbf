package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/gomodule/redigo/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourusername/embed-archiver/internal/app"
	"github.com/yourusername/embed-archiver/internal/domain"
	"github.com/yourusername/embed-archiver/internal/infrastructure"
	"github.com/yourusername/embed-archiver/internal/telemetry"
	"github.com/yourusername/embed-archiver/pkg/logger"
)

const serviceName = "embed-archiver"

// components holds every collaborator of the service, built once at startup
type components struct {
	config     *domain.Config
	log        *zap.Logger
	logAdapter *logger.LoggerAdapter
	registry   *prometheus.Registry
	metrics    *telemetry.Metrics

	queue     *infrastructure.SQLiteTaskQueue
	ledger    domain.ArchiveLedger
	cursors   domain.CursorStore
	engine    *app.TraversalEngine
	worker    *app.DownloadWorker
	queueMgr  *app.QueueManager
	scheduler *app.Scheduler
	lookup    *app.LookupService

	closers []func() error
}

// newLogging builds the main logger and, when a logs directory is configured,
// the category file loggers
func newLogging(config *domain.Config) (*logger.LoggerAdapter, func() error, error) {
	base, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		Service:    serviceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if config.Logging.LogsDir == "" {
		return logger.NewSingleLoggerAdapter(base), base.Sync, nil
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create category loggers: %w", err)
	}

	adapter := logger.NewLoggerAdapter(base, multiLog)
	closeFn := func() error {
		_ = adapter.Sync()
		return multiLog.Close()
	}
	return adapter, closeFn, nil
}

// buildComponents wires the service from configuration
func buildComponents(ctx context.Context, config *domain.Config) (*components, error) {
	c := &components{config: config}
	built := false
	defer func() {
		if !built {
			c.Close()
		}
	}()

	logAdapter, closeLogs, err := newLogging(config)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeLogs)
	c.logAdapter = logAdapter
	c.log = logAdapter.General()

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.metrics = telemetry.NewMetrics(c.registry)

	queueDB, err := infrastructure.OpenSQLite(config.Queue.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	c.closers = append(c.closers, func() error { return infrastructure.CloseSQLite(queueDB) })

	c.queue, err = infrastructure.NewSQLiteTaskQueue(queueDB, &config.Queue)
	if err != nil {
		return nil, err
	}

	archiveKV, cursorKV, err := c.openKV(&config.Store)
	if err != nil {
		return nil, err
	}
	c.ledger = infrastructure.NewKVArchiveLedger(archiveKV)
	c.cursors = infrastructure.NewKVCursorStore(cursorKV)

	objects, err := c.openObjectStore(ctx, &config.Storage)
	if err != nil {
		return nil, err
	}

	discord, err := infrastructure.NewDiscordClient(&config.Discord, nil, logAdapter.Traversal())
	if err != nil {
		return nil, err
	}
	fetcher := infrastructure.NewHTTPMediaFetcher(&config.Archive, nil, logAdapter.Archive())

	c.engine = app.NewTraversalEngine(discord, c.cursors, c.queue, &config.Traversal, c.metrics, logAdapter.Traversal())
	c.worker = app.NewDownloadWorker(c.ledger, fetcher, objects, &config.Archive, c.metrics, logAdapter.Archive())
	c.queueMgr = app.NewQueueManager(c.queue, c.engine, c.worker, &config.Queue, c.metrics, logAdapter.Queue())
	c.scheduler = app.NewScheduler(c.queue, config.Discord.Channels, &config.Traversal, logAdapter.Queue())
	c.lookup = app.NewLookupService(c.ledger, c.cursors, c.queue, &config.Discord, c.log)

	c.log.Info("Components initialized",
		zap.String("store_backend", config.Store.Backend),
		zap.String("storage_backend", config.Storage.Backend),
		zap.Strings("channels", config.Discord.Channels))

	built = true
	return c, nil
}

// openKV returns the archive and cursor namespaces of the configured store
func (c *components) openKV(config *domain.StoreConfig) (domain.KVStore, domain.KVStore, error) {
	switch config.Backend {
	case "redis":
		pool := c.openRedis(config)
		return infrastructure.NewRedisKVStore(pool, config.RedisPrefix, infrastructure.NamespaceArchive),
			infrastructure.NewRedisKVStore(pool, config.RedisPrefix, infrastructure.NamespaceCursor),
			nil
	default:
		db, err := c.openStateDB(config.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		archiveKV, err := infrastructure.NewSQLiteKVStore(db, infrastructure.NamespaceArchive)
		if err != nil {
			return nil, nil, err
		}
		cursorKV, err := infrastructure.NewSQLiteKVStore(db, infrastructure.NamespaceCursor)
		if err != nil {
			return nil, nil, err
		}
		return archiveKV, cursorKV, nil
	}
}

func (c *components) openRedis(config *domain.StoreConfig) *redis.Pool {
	pool := infrastructure.NewRedisPool(config)
	c.closers = append(c.closers, pool.Close)
	return pool
}

func (c *components) openStateDB(path string) (*gorm.DB, error) {
	db, err := infrastructure.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	c.closers = append(c.closers, func() error { return infrastructure.CloseSQLite(db) })
	return db, nil
}

func (c *components) openObjectStore(ctx context.Context, config *domain.StorageConfig) (domain.ObjectStore, error) {
	switch config.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		return infrastructure.NewGCSObjectStore(client, config.Bucket, c.logAdapter.Archive())
	default:
		return infrastructure.NewFilesystemObjectStore(config.BaseDir)
	}
}

// Close releases every opened resource in reverse order
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}

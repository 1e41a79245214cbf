package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Traversal TraversalConfig `mapstructure:"traversal"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DiscordConfig contains upstream chat service configuration
type DiscordConfig struct {
	Token         string   `mapstructure:"token"`
	ApplicationID string   `mapstructure:"application_id"`
	PublicKey     string   `mapstructure:"public_key"` // hex encoded ed25519 key for interactions
	APIBase       string   `mapstructure:"api_base"`
	UserAgent     string   `mapstructure:"user_agent"`
	Channels      []string `mapstructure:"channels"` // channels approved for archiving
}

// TraversalConfig tunes the channel traversal engine
type TraversalConfig struct {
	InitialPageSize          int           `mapstructure:"initial_page_size"`
	PageSize                 int           `mapstructure:"page_size"`
	MaxRequestsPerInvocation int           `mapstructure:"max_requests_per_invocation"`
	RateLimitThreshold       int           `mapstructure:"rate_limit_threshold"` // remaining quota below this counts as exhausted
	RateLimitTolerance       time.Duration `mapstructure:"rate_limit_tolerance"`
	PageDelay                time.Duration `mapstructure:"page_delay"`
	ContinuationDelay        time.Duration `mapstructure:"continuation_delay"`
	ScheduleInterval         time.Duration `mapstructure:"schedule_interval"`
	BackfillEnabled          bool          `mapstructure:"backfill_enabled"`
}

// ArchiveConfig tunes the download worker
type ArchiveConfig struct {
	FetchJitter   time.Duration `mapstructure:"fetch_jitter"` // upper bound of the random delay before each fetch
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	MaxMediaBytes int64         `mapstructure:"max_media_bytes"`
	CacheControl  string        `mapstructure:"cache_control"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath         string        `mapstructure:"database_path"`
	CheckInterval        time.Duration `mapstructure:"check_interval"`
	LeaseTimeout         time.Duration `mapstructure:"lease_timeout"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	TraversalConcurrency int           `mapstructure:"traversal_concurrency"`
	ArchiveConcurrency   int           `mapstructure:"archive_concurrency"`
	AutoStartWorkers     bool          `mapstructure:"auto_start_workers"`
	AutoStartScheduler   bool          `mapstructure:"auto_start_scheduler"`
}

// StoreConfig selects the key-value backend for the ledger and cursor store
type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // sqlite, redis
	DatabasePath  string `mapstructure:"database_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// StorageConfig selects the object storage backend for archived media
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // filesystem, gcs
	BaseDir       string `mapstructure:"base_dir"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category log files, empty disables them
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Discord: DiscordConfig{
			APIBase:   "https://discord.com/api/v10",
			UserAgent: "DiscordBot (https://github.com/yourusername/embed-archiver, 1.0.0)",
		},
		Traversal: TraversalConfig{
			InitialPageSize:          100,
			PageSize:                 100,
			MaxRequestsPerInvocation: 8,
			RateLimitThreshold:       2,
			RateLimitTolerance:       5 * time.Second,
			PageDelay:                1234 * time.Millisecond,
			ContinuationDelay:        3245 * time.Millisecond,
			ScheduleInterval:         10 * time.Minute,
			BackfillEnabled:          true,
		},
		Archive: ArchiveConfig{
			FetchJitter:   500 * time.Millisecond,
			FetchTimeout:  60 * time.Second,
			MaxMediaBytes: 100 << 20,
			CacheControl:  "public",
		},
		Queue: QueueConfig{
			DatabasePath:         "$HOME/.embed-archiver/queue.db",
			CheckInterval:        2 * time.Second,
			LeaseTimeout:         5 * time.Minute,
			RetryDelay:           30 * time.Second,
			MaxAttempts:          5,
			TraversalConcurrency: 2,
			ArchiveConcurrency:   4,
			AutoStartWorkers:     true,
			AutoStartScheduler:   true,
		},
		Store: StoreConfig{
			Backend:      "sqlite",
			DatabasePath: "$HOME/.embed-archiver/state.db",
			RedisAddr:    "localhost:6379",
			RedisPrefix:  "embed-archiver",
		},
		Storage: StorageConfig{
			Backend: "filesystem",
			BaseDir: "$HOME/.embed-archiver/media",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.embed-archiver/logs",
		},
	}
}

// IsApprovedChannel reports whether channelID is configured for archiving
func (c *DiscordConfig) IsApprovedChannel(channelID string) bool {
	for _, ch := range c.Channels {
		if ch == channelID {
			return true
		}
	}
	return false
}

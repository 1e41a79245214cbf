package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. ARCHIVER_DISCORD_TOKEN
const EnvPrefix = "ARCHIVER"

// LoadConfig loads configuration from a .env file, a YAML file and the environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.embed-archiver")
		v.AddConfigPath("/etc/embed-archiver")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper only consults the environment for keys it knows about
	setDefaults(v, "", reflect.ValueOf(config).Elem())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every leaf of the config struct as a viper default
func setDefaults(v *viper.Viper, prefix string, value reflect.Value) {
	walkConfig(prefix, value, func(key string, leaf interface{}) {
		v.SetDefault(key, leaf)
	})
}

// walkConfig calls fn with the dotted mapstructure key of every leaf field
func walkConfig(prefix string, value reflect.Value, fn func(key string, leaf interface{})) {
	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := value.Field(i)
		if fv.Kind() == reflect.Struct {
			walkConfig(key, fv, fn)
			continue
		}
		fn(key, fv.Interface())
	}
}

// longestTraversal bounds the time one invocation spends sleeping: the pacing
// between pages plus a capped rate-limit wait after every page
func longestTraversal(config *domain.TraversalConfig) time.Duration {
	requests := time.Duration(config.MaxRequestsPerInvocation)
	return requests*config.PageDelay + requests*config.RateLimitTolerance
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Storage.BaseDir = expandPath(config.Storage.BaseDir)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// $HOME may be unset in service environments
	if strings.Contains(path, "$HOME") && os.Getenv("HOME") == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig fails fast on configuration the service cannot run with
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Discord.Token == "" {
		return fmt.Errorf("discord token not configured")
	}
	if len(config.Discord.Channels) == 0 {
		return fmt.Errorf("no channels approved for archiving")
	}
	if config.Discord.APIBase == "" {
		return fmt.Errorf("discord api base not configured")
	}

	tr := config.Traversal
	if tr.InitialPageSize < 1 || tr.InitialPageSize > 100 || tr.PageSize < 1 || tr.PageSize > 100 {
		return fmt.Errorf("page sizes must be between 1 and 100")
	}
	if tr.MaxRequestsPerInvocation < 1 {
		return fmt.Errorf("max requests per invocation must be at least 1")
	}
	if tr.RateLimitTolerance < 0 || tr.PageDelay < 0 || tr.ContinuationDelay < 0 {
		return fmt.Errorf("traversal delays cannot be negative")
	}
	if tr.ScheduleInterval <= 0 {
		return fmt.Errorf("schedule interval must be positive")
	}

	if config.Archive.FetchJitter < 0 {
		return fmt.Errorf("fetch jitter cannot be negative")
	}

	q := config.Queue
	if q.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}
	if q.CheckInterval <= 0 || q.LeaseTimeout <= 0 {
		return fmt.Errorf("queue intervals must be positive")
	}
	if q.TraversalConcurrency < 1 || q.ArchiveConcurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1")
	}
	// a traversal still running when its lease expires would be handed to a second worker
	if longest := longestTraversal(&tr); q.LeaseTimeout <= longest {
		return fmt.Errorf("queue lease timeout %v must exceed the longest traversal (%v)", q.LeaseTimeout, longest)
	}

	switch config.Store.Backend {
	case "sqlite":
		if config.Store.DatabasePath == "" {
			return fmt.Errorf("store database path not configured")
		}
	case "redis":
		if config.Store.RedisAddr == "" {
			return fmt.Errorf("redis address not configured")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", config.Store.Backend)
	}

	switch config.Storage.Backend {
	case "filesystem":
		if config.Storage.BaseDir == "" {
			return fmt.Errorf("storage base directory not configured")
		}
	case "gcs":
		if config.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket not configured")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", config.Storage.Backend)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// credentials stay in the environment
	secrets := map[string]bool{"discord.token": true, "store.redis_password": true}
	walkConfig("", reflect.ValueOf(config).Elem(), func(key string, leaf interface{}) {
		if secrets[key] {
			return
		}
		if d, ok := leaf.(time.Duration); ok {
			leaf = d.String()
		}
		v.Set(key, leaf)
	})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

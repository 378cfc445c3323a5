package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment override, e.g. YTLIB_QUEUE_WORKERS.
const EnvPrefix = "ytlib"

var validate = validator.New()

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log       LogConfig       `toml:"log" envconfig:"log"`
	Database  DatabaseConfig  `toml:"database" envconfig:"database"`
	Server    ServerConfig    `toml:"server" envconfig:"server"`
	Library   LibraryConfig   `toml:"library" envconfig:"library"`
	Queue     QueueConfig     `toml:"queue" envconfig:"queue"`
	Retry     RetryConfig     `toml:"retry" envconfig:"retry"`
	Scheduler SchedulerConfig `toml:"scheduler" envconfig:"scheduler"`
	Catalog   CatalogConfig   `toml:"catalog" envconfig:"catalog"`
	Logs      StreamConfig    `toml:"logs" envconfig:"logs"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `toml:"level" envconfig:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" envconfig:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" envconfig:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" envconfig:"max_idle_conns" validate:"gte=0"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string   `toml:"host" envconfig:"host"`
	Port        int      `toml:"port" envconfig:"port" validate:"gte=1,lte=65535"`
	CORSOrigins []string `toml:"cors_origins" envconfig:"cors_origins"`
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the URL operator commands use to reach the server.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// LibraryConfig describes where organized files and per-job scratch space live.
type LibraryConfig struct {
	Root               string `toml:"root" envconfig:"root" validate:"required"`
	TempDir            string `toml:"temp_dir" envconfig:"temp_dir" validate:"required"`
	PlaylistsDir       string `toml:"playlists_dir" envconfig:"playlists_dir" validate:"required"`
	AudioFormat        string `toml:"audio_format" envconfig:"audio_format" validate:"oneof=mp3"`
	VerifyFingerprints bool   `toml:"verify_fingerprints" envconfig:"verify_fingerprints"`
}

// PlaylistsPath is PlaylistsDir, resolved against Root when relative.
func (l LibraryConfig) PlaylistsPath() string {
	if filepath.IsAbs(l.PlaylistsDir) {
		return l.PlaylistsDir
	}
	return filepath.Join(l.Root, l.PlaylistsDir)
}

// QueueConfig bounds job admission and concurrency.
type QueueConfig struct {
	Workers           int `toml:"workers" envconfig:"workers" validate:"gte=1,lte=16"`
	Capacity          int `toml:"capacity" envconfig:"capacity" validate:"gte=1"`
	JobTimeoutMinutes int `toml:"job_timeout_minutes" envconfig:"job_timeout_minutes" validate:"gte=1"`
}

// JobTimeout returns the wall-clock limit for a single job.
func (q QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutMinutes) * time.Minute
}

// RetryConfig controls retries of external collaborator calls.
type RetryConfig struct {
	MaxAttempts        int     `toml:"max_attempts" envconfig:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoffMS   int     `toml:"initial_backoff_ms" envconfig:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMS       int     `toml:"max_backoff_ms" envconfig:"max_backoff_ms" validate:"gtefield=InitialBackoffMS"`
	CallTimeoutSeconds int     `toml:"call_timeout_seconds" envconfig:"call_timeout_seconds" validate:"gte=1"`
	RateLimit          float64 `toml:"rate_limit" envconfig:"rate_limit" validate:"gt=0"`
}

func (r RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMS) * time.Millisecond
}

func (r RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

func (r RetryConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutSeconds) * time.Second
}

// SchedulerConfig controls periodic subscription syncs.
type SchedulerConfig struct {
	Enabled         bool `toml:"enabled" envconfig:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes" envconfig:"interval_minutes" validate:"gte=5,lte=10080"`
}

// Interval returns the configured sync interval.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// CatalogConfig points at the catalog lookup proxy.
type CatalogConfig struct {
	BaseURL         string `toml:"base_url" envconfig:"base_url" validate:"required,url"`
	TokenURL        string `toml:"token_url" envconfig:"token_url" validate:"omitempty,url"`
	ClientID        string `toml:"client_id" envconfig:"client_id"`
	ClientSecret    string `toml:"client_secret" envconfig:"client_secret"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds" envconfig:"cache_ttl_seconds" validate:"gte=0"`
	CacheSize       int    `toml:"cache_size" envconfig:"cache_size" validate:"gte=0"`
}

func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// StreamConfig sizes the live log buffers.
type StreamConfig struct {
	BufferSize int `toml:"buffer_size" envconfig:"buffer_size" validate:"gte=1,lte=10000"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ResolveConfig loads the file at path when it exists, applies environment overrides and validates the result.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overlays YTLIB_* environment variables onto the config.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

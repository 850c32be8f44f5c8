package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Streaming StreamingConfig `toml:"streaming"`
	Downloads DownloadsConfig `toml:"downloads"`
	Queue     QueueConfig     `toml:"queue"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig holds the Subsonic server address and credentials.
type ServerConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Client   string `toml:"client"`
}

// StreamingConfig controls transcoding parameters on playback stream URLs.
type StreamingConfig struct {
	MaxBitRate int    `toml:"max_bit_rate"`
	Format     string `toml:"format"`
}

// DownloadsConfig configures the download engine and coordinator timers.
type DownloadsConfig struct {
	Dir               string `toml:"dir"`
	MaxConcurrent     int    `toml:"max_concurrent"`
	AutoRetry         bool   `toml:"auto_retry"`
	MaxRetryAttempts  int    `toml:"max_retry_attempts"`
	DownloadArtwork   bool   `toml:"download_artwork"`
	Background        bool   `toml:"background"`
	PlaybackSource    string `toml:"playback_source"`
	FlushIntervalMS   int    `toml:"flush_interval_ms"`
	CompletionHoldMS  int    `toml:"completion_hold_ms"`
	RefreshDebounceMS int    `toml:"refresh_debounce_ms"`
}

func (d DownloadsConfig) FlushInterval() time.Duration {
	return time.Duration(d.FlushIntervalMS) * time.Millisecond
}

func (d DownloadsConfig) CompletionHold() time.Duration {
	return time.Duration(d.CompletionHoldMS) * time.Millisecond
}

func (d DownloadsConfig) RefreshDebounce() time.Duration {
	return time.Duration(d.RefreshDebounceMS) * time.Millisecond
}

// QueueConfig configures the play queue.
type QueueConfig struct {
	PlaylistID         string `toml:"playlist_id"`
	RestartThresholdMS int    `toml:"restart_threshold_ms"`
	ClearDelayMS       int    `toml:"clear_delay_ms"`
	Scrobble           bool   `toml:"scrobble"`
}

func (q QueueConfig) RestartThreshold() time.Duration {
	return time.Duration(q.RestartThresholdMS) * time.Millisecond
}

func (q QueueConfig) ClearDelay() time.Duration {
	return time.Duration(q.ClearDelayMS) * time.Millisecond
}

// CatalogConfig configures catalog caching and request pacing.
type CatalogConfig struct {
	CacheTTLMinutes   int     `toml:"cache_ttl_minutes"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig sets the log level by name (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// ParsedLevel returns the configured [log.Level], falling back to info.
func (l LogConfig) ParsedLevel() log.Level {
	lvl, err := log.ParseLevel(l.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LoadConfig reads a TOML configuration file over the embedded defaults, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config.ApplyEnv(os.LookupEnv)
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

// LoadEnv loads variables from the given .env files into the process environment.
//
// Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overrides config values with AGIN_* variables resolved through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"AGIN_SERVER_URL":      &c.Server.URL,
		"AGIN_SERVER_USERNAME": &c.Server.Username,
		"AGIN_SERVER_PASSWORD": &c.Server.Password,
		"AGIN_DOWNLOADS_DIR":   &c.Downloads.Dir,
		"AGIN_DATABASE_PATH":   &c.Database.Path,
		"AGIN_LOG_LEVEL":       &c.Log.Level,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.URL == "" {
		errs = append(errs, fmt.Errorf("server.url is required"))
	} else if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL))
	}
	if strings.TrimSpace(c.Server.Username) == "" {
		errs = append(errs, fmt.Errorf("server.username is required"))
	}
	if c.Downloads.Dir == "" {
		errs = append(errs, fmt.Errorf("downloads.dir is required"))
	}
	if c.Downloads.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("downloads.max_concurrent must be at least 1"))
	}
	if c.Downloads.MaxRetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("downloads.max_retry_attempts must not be negative"))
	}
	if c.Downloads.FlushIntervalMS <= 0 || c.Downloads.CompletionHoldMS < 0 || c.Downloads.RefreshDebounceMS < 0 {
		errs = append(errs, fmt.Errorf("downloads timers must be positive"))
	}
	if c.Queue.PlaylistID == "" {
		errs = append(errs, fmt.Errorf("queue.playlist_id is required"))
	}
	if c.Catalog.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("catalog.requests_per_second must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

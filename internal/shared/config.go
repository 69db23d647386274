package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Sync      SyncConfig      `toml:"sync"`
	Download  DownloadConfig  `toml:"download"`
	Providers ProvidersConfig `toml:"providers"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the URL clients use to reach the daemon.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// SyncConfig controls the scheduler and retry behaviour.
type SyncConfig struct {
	CheckIntervalSeconds int      `toml:"check_interval_seconds"`
	ScanOnStart          bool     `toml:"scan_on_start"`
	MaxAttempts          int      `toml:"max_attempts"`
	Playlists            []string `toml:"playlists"`
}

// CheckInterval returns the scheduler period.
func (s SyncConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalSeconds) * time.Second
}

// DownloadConfig contains download provider settings.
type DownloadConfig struct {
	Dir               string   `toml:"dir"`
	AudioFormat       string   `toml:"audio_format"`
	AudioQuality      string   `toml:"audio_quality"`
	FormatPreferences []string `toml:"format_preferences"`
	EmbedThumbnail    bool     `toml:"embed_thumbnail"`
	YTDLPPath         string   `toml:"ytdlp_path"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	DelayEnabled      bool     `toml:"delay_enabled"`
	DelayMinSeconds   int      `toml:"delay_min_seconds"`
	DelayMaxSeconds   int      `toml:"delay_max_seconds"`
}

// Timeout returns the per-invocation limit for yt-dlp.
func (d DownloadConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ProvidersConfig contains metadata provider settings.
type ProvidersConfig struct {
	ProxyURL      string  `toml:"proxy_url"`
	HeadersPath   string  `toml:"headers_path"`
	Language      string  `toml:"language"`
	Location      string  `toml:"location"`
	EnrichRate    float64 `toml:"enrich_rate"`
	RetryAttempts uint    `toml:"retry_attempts"`
}

// LogConfig contains logger settings. File output is rotated when File is set.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
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

// LoadDotEnv loads variables from the given .env files into the process environment.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from environment variables.
//
// lookup is usually [os.LookupEnv]; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
		}
		*dst = b
		return nil
	}

	str("DATABASE_PATH", &c.Database.Path)
	str("DOWNLOAD_DIR", &c.Download.Dir)
	str("DOWNLOAD_FORMAT", &c.Download.AudioFormat)
	str("AUDIO_QUALITY", &c.Download.AudioQuality)
	str("TUNESYNC_PROXY_URL", &c.Providers.ProxyURL)
	str("TUNESYNC_LOG_LEVEL", &c.Log.Level)

	for key, dst := range map[string]*int{
		"CHECK_INTERVAL":     &c.Sync.CheckIntervalSeconds,
		"DOWNLOAD_DELAY_MIN": &c.Download.DelayMinSeconds,
		"DOWNLOAD_DELAY_MAX": &c.Download.DelayMaxSeconds,
		"TUNESYNC_PORT":      &c.Server.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if err := flag("DOWNLOAD_DELAY_ENABLED", &c.Download.DelayEnabled); err != nil {
		return err
	}

	if v, ok := lookup("DEFAULT_PLAYLISTS"); ok && v != "" {
		var playlists []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				playlists = append(playlists, p)
			}
		}
		c.Sync.Playlists = playlists
	}

	return nil
}

// Validate checks the values the engine depends on.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Download.Dir == "":
		return fmt.Errorf("%w: download.dir is required", ErrInvalidConfig)
	case c.Sync.CheckIntervalSeconds <= 0:
		return fmt.Errorf("%w: sync.check_interval_seconds must be positive", ErrInvalidConfig)
	case c.Sync.MaxAttempts < 0:
		return fmt.Errorf("%w: sync.max_attempts must not be negative", ErrInvalidConfig)
	case c.Download.DelayMinSeconds < 0 || c.Download.DelayMaxSeconds < c.Download.DelayMinSeconds:
		return fmt.Errorf("%w: download delay range %d..%d", ErrInvalidConfig, c.Download.DelayMinSeconds, c.Download.DelayMaxSeconds)
	case len(c.Download.FormatPreferences) == 0:
		return fmt.Errorf("%w: download.format_preferences must list at least one format", ErrInvalidConfig)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	dshttp "github.com/ligustah/dirsync/internal/http"
	"github.com/ligustah/dirsync/internal/progress"
)

// EnvPrefix is prepended to every environment variable read by LoadFromEnv.
const EnvPrefix = "DIRSYNC_"

// Config defines configuration for the dirsync CLI.
type Config struct {
	Directory       string     `yaml:"directory"`
	Manifest        string     `yaml:"manifest"`
	Overrides       string     `yaml:"overrides"`
	ParallelNetwork int        `yaml:"parallel_network"`
	Progress        bool       `yaml:"progress"`
	VerifySize      bool       `yaml:"verify_size"`
	CancelOnFailure bool       `yaml:"cancel_on_failure"`
	CheckDiskSpace  bool       `yaml:"check_disk_space"`
	DiskHeadroom    int64      `yaml:"disk_headroom"`
	LogLevel        string     `yaml:"log_level"`
	HTTP            HTTPConfig `yaml:"http"`
}

// HTTPConfig configures the network client.
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryMaxBackoff time.Duration `yaml:"retry_max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ParallelNetwork: 10,
		LogLevel:        "info",
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			RetryAttempts:   5,
			RetryBackoff:    time.Second,
			RetryMaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Directory       string         `yaml:"directory"`
	Manifest        string         `yaml:"manifest"`
	Overrides       string         `yaml:"overrides"`
	ParallelNetwork int            `yaml:"parallel_network"`
	Progress        bool           `yaml:"progress"`
	VerifySize      bool           `yaml:"verify_size"`
	CancelOnFailure bool           `yaml:"cancel_on_failure"`
	CheckDiskSpace  bool           `yaml:"check_disk_space"`
	DiskHeadroom    string         `yaml:"disk_headroom"`
	LogLevel        string         `yaml:"log_level"`
	HTTP            yamlHTTPConfig `yaml:"http"`
}

type yamlHTTPConfig struct {
	Timeout         string `yaml:"timeout"`
	RetryAttempts   int    `yaml:"retry_attempts"`
	RetryBackoff    string `yaml:"retry_backoff"`
	RetryMaxBackoff string `yaml:"retry_max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Directory != "" {
		cfg.Directory = yc.Directory
	}
	if yc.Manifest != "" {
		cfg.Manifest = yc.Manifest
	}
	if yc.Overrides != "" {
		cfg.Overrides = yc.Overrides
	}
	if yc.ParallelNetwork != 0 {
		cfg.ParallelNetwork = yc.ParallelNetwork
	}
	cfg.Progress = yc.Progress
	cfg.VerifySize = yc.VerifySize
	cfg.CancelOnFailure = yc.CancelOnFailure
	cfg.CheckDiskSpace = yc.CheckDiskSpace
	if yc.DiskHeadroom != "" {
		size, err := progress.ParseBytes(yc.DiskHeadroom)
		if err != nil {
			return Config{}, fmt.Errorf("parse disk_headroom: %w", err)
		}
		cfg.DiskHeadroom = size
	}
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.HTTP.Timeout != "" {
		d, err := time.ParseDuration(yc.HTTP.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.timeout: %w", err)
		}
		cfg.HTTP.Timeout = d
	}
	if yc.HTTP.RetryAttempts != 0 {
		cfg.HTTP.RetryAttempts = yc.HTTP.RetryAttempts
	}
	if yc.HTTP.RetryBackoff != "" {
		d, err := time.ParseDuration(yc.HTTP.RetryBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.retry_backoff: %w", err)
		}
		cfg.HTTP.RetryBackoff = d
	}
	if yc.HTTP.RetryMaxBackoff != "" {
		d, err := time.ParseDuration(yc.HTTP.RetryMaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.retry_max_backoff: %w", err)
		}
		cfg.HTTP.RetryMaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DIRSYNC_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "DIRECTORY"); v != "" {
		c.Directory = v
	}
	if v := os.Getenv(EnvPrefix + "MANIFEST"); v != "" {
		c.Manifest = v
	}
	if v := os.Getenv(EnvPrefix + "OVERRIDES"); v != "" {
		c.Overrides = v
	}
	if v := os.Getenv(EnvPrefix + "PARALLEL_NETWORK"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPARALLEL_NETWORK: %w", EnvPrefix, err)
		}
		c.ParallelNetwork = n
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS"); v != "" {
		c.Progress = truthy(v)
	}
	if v := os.Getenv(EnvPrefix + "VERIFY_SIZE"); v != "" {
		c.VerifySize = truthy(v)
	}
	if v := os.Getenv(EnvPrefix + "CANCEL_ON_FAILURE"); v != "" {
		c.CancelOnFailure = truthy(v)
	}
	if v := os.Getenv(EnvPrefix + "CHECK_DISK_SPACE"); v != "" {
		c.CheckDiskSpace = truthy(v)
	}
	if v := os.Getenv(EnvPrefix + "DISK_HEADROOM"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sDISK_HEADROOM: %w", EnvPrefix, err)
		}
		c.DiskHeadroom = size
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTP.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "HTTP_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_RETRY_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.HTTP.RetryAttempts = n
	}
	if v := os.Getenv(EnvPrefix + "HTTP_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_RETRY_BACKOFF: %w", EnvPrefix, err)
		}
		c.HTTP.RetryBackoff = d
	}
	if v := os.Getenv(EnvPrefix + "HTTP_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_RETRY_MAX_BACKOFF: %w", EnvPrefix, err)
		}
		c.HTTP.RetryMaxBackoff = d
	}

	return nil
}

func truthy(v string) bool {
	return v == "true" || v == "1"
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.New("config: directory is required")
	}
	if c.Manifest == "" {
		return errors.New("config: manifest is required")
	}
	if c.ParallelNetwork <= 0 {
		return errors.New("config: parallel_network must be positive")
	}
	if c.DiskHeadroom < 0 {
		return errors.New("config: disk_headroom must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if c.HTTP.RetryAttempts < 0 {
		return errors.New("config: http.retry_attempts must not be negative")
	}
	if c.HTTP.Timeout < 0 || c.HTTP.RetryBackoff < 0 || c.HTTP.RetryMaxBackoff < 0 {
		return errors.New("config: http durations must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so booleans can only be switched on.
func (c Config) Merge(override Config) Config {
	if override.Directory != "" {
		c.Directory = override.Directory
	}
	if override.Manifest != "" {
		c.Manifest = override.Manifest
	}
	if override.Overrides != "" {
		c.Overrides = override.Overrides
	}
	if override.ParallelNetwork != 0 {
		c.ParallelNetwork = override.ParallelNetwork
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.VerifySize {
		c.VerifySize = override.VerifySize
	}
	if override.CancelOnFailure {
		c.CancelOnFailure = override.CancelOnFailure
	}
	if override.CheckDiskSpace {
		c.CheckDiskSpace = override.CheckDiskSpace
	}
	if override.DiskHeadroom != 0 {
		c.DiskHeadroom = override.DiskHeadroom
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.HTTP.Timeout != 0 {
		c.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.RetryAttempts != 0 {
		c.HTTP.RetryAttempts = override.HTTP.RetryAttempts
	}
	if override.HTTP.RetryBackoff != 0 {
		c.HTTP.RetryBackoff = override.HTTP.RetryBackoff
	}
	if override.HTTP.RetryMaxBackoff != 0 {
		c.HTTP.RetryMaxBackoff = override.HTTP.RetryMaxBackoff
	}
	return c
}

// HTTPOptions returns client options carrying the HTTP settings.
func (c Config) HTTPOptions() dshttp.Options {
	opts := dshttp.DefaultOptions()
	opts.Timeout = c.HTTP.Timeout
	opts.RetryAttempts = c.HTTP.RetryAttempts
	opts.RetryBackoff = c.HTTP.RetryBackoff
	opts.RetryMaxBackoff = c.HTTP.RetryMaxBackoff
	return opts
}

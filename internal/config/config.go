// Package config handles the loading and parsing of the application's configuration.
// It uses the Viper library to read from a YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"phishcatch/internal/logger"
)

// FileName is the config file name without extension.
const FileName = "phishcatch"

// EnvPrefix prefixes environment overrides, e.g. PHISHCATCH_FINGERPRINT_ALERT_THRESHOLD.
const EnvPrefix = "PHISHCATCH"

// Settings defines the overall configuration structure. It mirrors
// phishcatch.yaml and is populated by Viper.
type Settings struct {
	Log         logger.Config     `mapstructure:"log"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`
	Domains     DomainsConfig     `mapstructure:"domains"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Alert       AlertConfig       `mapstructure:"alert"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// FingerprintConfig controls hashing, matching and retention.
type FingerprintConfig struct {
	ExpiryDays     float64 `mapstructure:"expiry_days"`
	MaxEntries     int     `mapstructure:"max_entries"`
	AlertThreshold int     `mapstructure:"alert_threshold"`
	MergeThreshold int     `mapstructure:"merge_threshold"`
	Strict         bool    `mapstructure:"strict"`
}

// DomainsConfig lists trusted and ignored hosts.
type DomainsConfig struct {
	Enterprise []string `mapstructure:"enterprise"`
	Ignored    []string `mapstructure:"ignored"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Key     string      `mapstructure:"key"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// AlertConfig configures alert delivery.
type AlertConfig struct {
	Server      string        `mapstructure:"server"`
	PSK         string        `mapstructure:"psk"`
	Username    string        `mapstructure:"username"`
	File        string        `mapstructure:"file"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
}

// FetchConfig contains settings for page acquisition.
type FetchConfig struct {
	Timeout      int      `mapstructure:"timeout"`
	Retries      int      `mapstructure:"retries"`
	UserAgents   []string `mapstructure:"user_agents"`
	Render       bool     `mapstructure:"render"`
	RateLimit    float64  `mapstructure:"rate_limit"`
	Concurrency  int      `mapstructure:"concurrency"`
	Sanitization string   `mapstructure:"sanitization"`
	// CrawlDepth is how many link hops scan follows from each seed URL.
	CrawlDepth    int `mapstructure:"crawl_depth"`
	CrawlMaxPages int `mapstructure:"crawl_max_pages"`
}

// CleanupConfig controls the periodic maintenance pass.
type CleanupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.json_format", false)
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("fingerprint.expiry_days", 30)
	v.SetDefault("fingerprint.max_entries", 50)
	v.SetDefault("fingerprint.alert_threshold", 100)
	v.SetDefault("fingerprint.merge_threshold", 30)
	v.SetDefault("fingerprint.strict", false)

	v.SetDefault("domains.enterprise", []string{})
	v.SetDefault("domains.ignored", []string{})

	v.SetDefault("storage.backend", "bolt")
	v.SetDefault("storage.path", "data/phishcatch.db")
	v.SetDefault("storage.key", "datedDomHashes")
	v.SetDefault("storage.redis.url", "redis://localhost:6379/0")

	v.SetDefault("alert.server", "")
	v.SetDefault("alert.psk", "")
	v.SetDefault("alert.username", "")
	v.SetDefault("alert.file", "")
	v.SetDefault("alert.dedup_window", 30*time.Second)

	v.SetDefault("fetch.timeout", 15)
	v.SetDefault("fetch.retries", 2)
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.render", false)
	v.SetDefault("fetch.rate_limit", 5)
	v.SetDefault("fetch.concurrency", 10)
	v.SetDefault("fetch.sanitization", "host")
	v.SetDefault("fetch.crawl_depth", 0)
	v.SetDefault("fetch.crawl_max_pages", 50)

	v.SetDefault("cleanup.interval", time.Hour)
}

// LoadConfig reads phishcatch.yaml from path (a directory or a file) and
// unmarshals it into Settings. A missing file is not an error when path is a
// directory; defaults and environment variables still apply.
func LoadConfig(path string) (Settings, error) {
	v := viper.New()
	SetDefaults(v)

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		v.SetConfigFile(path)
	} else {
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.Fingerprint.ExpiryDays <= 0 {
		errs = append(errs, fmt.Errorf("fingerprint.expiry_days must be positive"))
	}
	if s.Fingerprint.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("fingerprint.max_entries must be at least 1"))
	}
	if s.Fingerprint.AlertThreshold < 1 {
		errs = append(errs, fmt.Errorf("fingerprint.alert_threshold must be at least 1"))
	}
	if s.Fingerprint.MergeThreshold < 0 {
		errs = append(errs, fmt.Errorf("fingerprint.merge_threshold must not be negative"))
	}
	switch s.Storage.Backend {
	case "memory", "bolt", "redis":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, bolt, redis", s.Storage.Backend))
	}
	if s.Storage.Backend == "bolt" && s.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for the bolt backend"))
	}
	switch strings.ToLower(s.Fetch.Sanitization) {
	case "host", "path", "none":
	default:
		errs = append(errs, fmt.Errorf("fetch.sanitization %q is not one of host, path, none", s.Fetch.Sanitization))
	}
	if s.Fetch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be at least 1"))
	}
	if s.Fetch.CrawlDepth < 0 {
		errs = append(errs, fmt.Errorf("fetch.crawl_depth must not be negative"))
	}
	if s.Cleanup.Interval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup.interval must be positive"))
	}
	return errors.Join(errs...)
}

// Package config handles application configuration from environment
// variables, optionally layered over a YAML file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"repost_bot/internal/model"
)

// Supported gateways.
const (
	GatewayTelegram = "telegram"
	GatewayDiscord  = "discord"
)

// Config holds the application configuration.
type Config struct {
	Gateway          string
	TelegramBotToken string
	DiscordToken     string

	CacheLimit     uint64
	IgnoredType    model.ContentKind
	TrackingParams []string

	Workers            int
	MaxAttachmentBytes int64

	DatabasePath string
	LogLevel     string
	LogFormat    string
	AllowedUsers []string

	FeedURLs     []string
	FeedInterval time.Duration
	FeedInclude  []string
	FeedExclude  []string
}

// fileConfig mirrors the YAML layout. Pointers distinguish unset keys from
// explicit zero values.
type fileConfig struct {
	Gateway  string `yaml:"gateway"`
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
	Discord struct {
		Token string `yaml:"token"`
	} `yaml:"discord"`
	Cache struct {
		Limit          *uint64  `yaml:"limit"`
		IgnoredType    string   `yaml:"ignored_type"`
		TrackingParams []string `yaml:"tracking_params"`
	} `yaml:"cache"`
	Workers            *int   `yaml:"workers"`
	MaxAttachmentBytes *int64 `yaml:"max_attachment_bytes"`
	Database           struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	AllowedUsers []string `yaml:"allowed_users"`
	Feeds        struct {
		URLs     []string `yaml:"urls"`
		Interval string   `yaml:"interval"`
		Include  []string `yaml:"include"`
		Exclude  []string `yaml:"exclude"`
	} `yaml:"feeds"`
}

func defaults() *Config {
	return &Config{
		Gateway:            GatewayTelegram,
		CacheLimit:         5000,
		Workers:            8,
		MaxAttachmentBytes: 20 * 1024 * 1024,
		DatabasePath:       "./data/bot.db",
		LogLevel:           "info",
		LogFormat:          "text",
		FeedInterval:       15 * time.Minute,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order of
// precedence, and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.Gateway, fc.Gateway)
	setString(&c.TelegramBotToken, fc.Telegram.Token)
	setString(&c.DiscordToken, fc.Discord.Token)
	if fc.Cache.Limit != nil {
		c.CacheLimit = *fc.Cache.Limit
	}
	if fc.Cache.IgnoredType != "" {
		kind, err := model.ParseContentKind(fc.Cache.IgnoredType)
		if err != nil {
			return fmt.Errorf("cache.ignored_type: %w", err)
		}
		c.IgnoredType = kind
	}
	c.TrackingParams = append(c.TrackingParams, fc.Cache.TrackingParams...)
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.MaxAttachmentBytes != nil {
		c.MaxAttachmentBytes = *fc.MaxAttachmentBytes
	}
	setString(&c.DatabasePath, fc.Database.Path)
	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.LogFormat, fc.Logging.Format)
	if len(fc.AllowedUsers) > 0 {
		c.AllowedUsers = fc.AllowedUsers
	}
	if len(fc.Feeds.URLs) > 0 {
		c.FeedURLs = fc.Feeds.URLs
	}
	if fc.Feeds.Interval != "" {
		d, err := time.ParseDuration(fc.Feeds.Interval)
		if err != nil {
			return fmt.Errorf("feeds.interval %q: %w", fc.Feeds.Interval, err)
		}
		c.FeedInterval = d
	}
	c.FeedInclude = append(c.FeedInclude, fc.Feeds.Include...)
	c.FeedExclude = append(c.FeedExclude, fc.Feeds.Exclude...)
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Gateway, os.Getenv("REPOST_GATEWAY"))
	setString(&c.TelegramBotToken, os.Getenv("TELEGRAM_BOT_TOKEN"))
	setString(&c.DiscordToken, os.Getenv("REPOST_DISCORD_TOKEN"))
	setString(&c.DatabasePath, os.Getenv("DATABASE_PATH"))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&c.LogFormat, os.Getenv("LOG_FORMAT"))

	if raw := os.Getenv("REPOST_CACHE_LIMIT"); raw != "" {
		limit, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REPOST_CACHE_LIMIT %q: %w", raw, err)
		}
		c.CacheLimit = limit
	}
	if raw := os.Getenv("REPOST_IGNORED_TYPE"); raw != "" {
		kind, err := model.ParseContentKind(raw)
		if err != nil {
			return fmt.Errorf("REPOST_IGNORED_TYPE: %w", err)
		}
		c.IgnoredType = kind
	}
	if raw := os.Getenv("REPOST_WORKERS"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid REPOST_WORKERS %q: %w", raw, err)
		}
		c.Workers = n
	}
	if raw := os.Getenv("REPOST_MAX_ATTACHMENT_BYTES"); raw != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid REPOST_MAX_ATTACHMENT_BYTES %q: %w", raw, err)
		}
		c.MaxAttachmentBytes = n
	}
	if raw := os.Getenv("REPOST_FEED_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid REPOST_FEED_INTERVAL %q: %w", raw, err)
		}
		c.FeedInterval = d
	}

	c.TrackingParams = append(c.TrackingParams, splitList(os.Getenv("REPOST_TRACKING_PARAMS"))...)
	c.FeedInclude = append(c.FeedInclude, splitList(os.Getenv("REPOST_FEED_INCLUDE"))...)
	c.FeedExclude = append(c.FeedExclude, splitList(os.Getenv("REPOST_FEED_EXCLUDE"))...)
	if users := splitList(os.Getenv("ALLOWED_USERS")); len(users) > 0 {
		c.AllowedUsers = users
	}
	if urls := splitList(os.Getenv("REPOST_FEED_URLS")); len(urls) > 0 {
		c.FeedURLs = urls
	}
	return nil
}

// Validate checks the configuration for values the bot cannot start with.
func (c *Config) Validate() error {
	c.Gateway = strings.ToLower(strings.TrimSpace(c.Gateway))
	switch c.Gateway {
	case GatewayTelegram:
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
		}
		for _, id := range c.AllowedUsers {
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				return fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", id, err)
			}
		}
	case GatewayDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("REPOST_DISCORD_TOKEN is required")
		}
	default:
		return fmt.Errorf("unknown gateway %q, use: %s, %s", c.Gateway, GatewayTelegram, GatewayDiscord)
	}

	if c.CacheLimit == 0 {
		return fmt.Errorf("REPOST_CACHE_LIMIT must be greater than zero")
	}
	if c.Workers < 1 {
		return fmt.Errorf("REPOST_WORKERS must be at least 1")
	}
	if c.MaxAttachmentBytes < 1 {
		return fmt.Errorf("REPOST_MAX_ATTACHMENT_BYTES must be positive")
	}
	if len(c.FeedURLs) > 0 && c.FeedInterval < time.Minute {
		return fmt.Errorf("REPOST_FEED_INTERVAL must be at least 1m")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q, use: text, json", c.LogFormat)
	}
	return nil
}

// Monitoring returns the detection settings derived from the configuration.
func (c *Config) Monitoring() model.MonitoringConfig {
	return model.MonitoringConfig{Ignored: c.IgnoredType}
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID string) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

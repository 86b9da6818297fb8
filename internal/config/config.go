// Package config loads runtime settings for the server and the CLI.
//
// Precedence, highest first:
//  1. environment variables (see envKeys)
//  2. an optional YAML file (--config or ADMWATCH_CONFIG)
//  3. the embedded defaults.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const maxConfigFileSize = 1 << 20

// envKeys maps the recognised environment variables to config paths. Any
// other variable is ignored.
var envKeys = map[string]string{
	"PORT":                  "server.port",
	"CORS_ORIGINS":          "server.cors_origins",
	"DATABASE_URL":          "database.url",
	"DATABASE_MAX_CONNS":    "database.max_conns",
	"REDIS_URL":             "redis.url",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"JWT_SECRET":            "auth.jwt_secret",
	"ADMIN_SECRET":          "auth.admin_secret",
	"EMAIL_HOST":            "email.host",
	"EMAIL_PORT":            "email.port",
	"EMAIL_USER":            "email.user",
	"EMAIL_PASSWORD":        "email.password",
	"EMAIL_FROM":            "email.from",
	"FRONTEND_URL":          "email.frontend_url",
	"TELEGRAM_BOT_TOKEN":    "telegram.bot_token",
	"MONITOR_FETCHER":       "monitor.fetcher",
	"MONITOR_REGISTRY":      "monitor.registry",
	"MONITOR_REQUEST_DELAY": "monitor.request_delay",
	"MONITOR_FETCH_TIMEOUT": "monitor.fetch_timeout",
	"SCHEDULER_ENABLED":     "scheduler.enabled",
	"SCHEDULER_TIMEZONE":    "scheduler.timezone",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Email     EmailConfig     `koanf:"email"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig is optional. Without a URL the batch lock is process-local.
type RedisConfig struct {
	URL string `koanf:"url"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	JWTSecret   string        `koanf:"jwt_secret"`
	AdminSecret string        `koanf:"admin_secret"`
	TokenTTL    time.Duration `koanf:"token_ttl"`
}

type EmailConfig struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	User        string `koanf:"user"`
	Password    string `koanf:"password"`
	From        string `koanf:"from"`
	FrontendURL string `koanf:"frontend_url"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
}

type MonitorConfig struct {
	Fetcher           string        `koanf:"fetcher"`
	Registry          string        `koanf:"registry"`
	RequestDelay      time.Duration `koanf:"request_delay"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout"`
	AnalyzeTimeout    time.Duration `koanf:"analyze_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	LockTTL           time.Duration `koanf:"lock_ttl"`
	ReminderWindow    time.Duration `koanf:"reminder_window"`
	AllowPrivateHosts bool          `koanf:"allow_private_hosts"`
}

type SchedulerConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Timezone     string `koanf:"timezone"`
	DailySpec    string `koanf:"daily_spec"`
	WeeklySpec   string `koanf:"weekly_spec"`
	DigestSpec   string `koanf:"digest_spec"`
	ReminderSpec string `koanf:"reminder_spec"`
}

// Load reads the embedded defaults, then path if it is not empty, then the
// environment. An empty path falls back to ADMWATCH_CONFIG.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv("ADMWATCH_CONFIG")
	}
	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(envProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envProvider only picks up the variables in envKeys and skips empty values,
// so an exported but blank variable does not wipe a default.
func envProvider() *env.Env {
	return env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		path, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		if path == "server.cors_origins" {
			return path, splitList(value)
		}
		return path, value
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Monitor.Fetcher {
	case "http", "colly":
	default:
		return fmt.Errorf("monitor.fetcher must be http or colly, got %q", c.Monitor.Fetcher)
	}
	if c.Monitor.RequestDelay < 0 {
		return fmt.Errorf("monitor.request_delay must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Scheduler.Timezone == "" {
		return fmt.Errorf("scheduler.timezone is required")
	}
	return nil
}

// Package config loads the hoster daemon configuration from a TOML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	WorkspaceRoot string `toml:"workspace_root"`
	Runtime       string `toml:"runtime"` // "process" or "docker"

	Telegram TelegramConfig `toml:"telegram"`
	Defaults DefaultsConfig `toml:"defaults"`
	Artifact ArtifactConfig `toml:"artifact"`
	Docker   DockerConfig   `toml:"docker"`
	Monitor  MonitorConfig  `toml:"monitor"`
	HTTP     HTTPConfig     `toml:"http"`
	Redis    RedisConfig    `toml:"redis"`
	Database DatabaseConfig `toml:"database"`
}

// TelegramConfig holds the hoster's own transport identity.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	AdminID  int64  `toml:"admin_id"`
	BaseURL  string `toml:"base_url"`
}

// DefaultsConfig supplies fallback values for skipped intake fields.
type DefaultsConfig struct {
	APIID    string `toml:"api_id"`
	APIHash  string `toml:"api_hash"`
	MongoURI string `toml:"mongo_uri"`
}

// ArtifactConfig describes where deployable bot source comes from.
// ArchivePath, when set, switches from git clone to archive extraction.
type ArtifactConfig struct {
	RepoURL     string `toml:"repo_url"`
	Token       string `toml:"token"`
	ArchivePath string `toml:"archive_path"`
}

// DockerConfig applies when runtime = "docker".
type DockerConfig struct {
	Image   string `toml:"image"`
	Network string `toml:"network"`
}

// MonitorConfig tunes the background health monitor.
type MonitorConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// HTTPConfig enables the status API when Addr is set.
type HTTPConfig struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret"`
}

// RedisConfig enables lifecycle event publishing when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// DatabaseConfig enables provisioning run history when URL is set.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// Load reads the TOML file at path (when it exists), applies environment
// overrides, and validates required fields.
func Load(path string) (*Config, error) {
	cfg := &Config{
		WorkspaceRoot: "bots",
		Runtime:       "process",
		Docker:        DockerConfig{Image: "musichost-tenant:latest"},
		Monitor:       MonitorConfig{IntervalSeconds: 60},
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("decode config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Telegram.BotToken = envOrDefault("HOSTER_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Artifact.Token = envOrDefault("GITHUB_TOKEN", cfg.Artifact.Token)
	cfg.Artifact.RepoURL = envOrDefault("ARTIFACT_REPO_URL", cfg.Artifact.RepoURL)
	cfg.WorkspaceRoot = envOrDefault("WORKSPACE_ROOT", cfg.WorkspaceRoot)
	cfg.Runtime = envOrDefault("HOSTER_RUNTIME", cfg.Runtime)
	cfg.HTTP.Addr = envOrDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.JWTSecret = envOrDefault("API_JWT_SECRET", cfg.HTTP.JWTSecret)
	cfg.Redis.Addr = envOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Database.URL = envOrDefault("DATABASE_URL", cfg.Database.URL)

	if raw := strings.TrimSpace(os.Getenv("BOT_ADMIN_ID")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Telegram.AdminID = id
		}
	}
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required (telegram.bot_token or HOSTER_BOT_TOKEN)")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("admin id is required (telegram.admin_id or BOT_ADMIN_ID)")
	}
	if strings.TrimSpace(cfg.Artifact.RepoURL) == "" && strings.TrimSpace(cfg.Artifact.ArchivePath) == "" {
		return fmt.Errorf("artifact source is required (artifact.repo_url or artifact.archive_path)")
	}
	switch cfg.Runtime {
	case "process", "docker":
	default:
		return fmt.Errorf("unsupported runtime %q", cfg.Runtime)
	}
	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 60
	}
	return nil
}

// MonitorInterval returns the monitor scan interval as a duration.
func (cfg *Config) MonitorInterval() time.Duration {
	return time.Duration(cfg.Monitor.IntervalSeconds) * time.Second
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

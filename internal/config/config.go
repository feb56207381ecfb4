package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Storage struct {
		// Backend is one of memory, redis or postgres.
		Backend string `yaml:"backend"`
		Key     string `yaml:"key"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		CacheTTL string `yaml:"cacheTtl"`
	} `yaml:"redis"`
	Postgres struct {
		URL      string `yaml:"url"`
		CacheTTL string `yaml:"cacheTtl"`
	} `yaml:"postgres"`
	Quiz struct {
		Countdown string `yaml:"countdown"`
	} `yaml:"quiz"`
	RateLimit struct {
		PerMinute int `yaml:"perMinute"`
		Burst     int `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to an empty config when the file is missing.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	return cfg, err
}

// StorageBackend resolves the configured backend, inferring it from the
// connection settings when left empty.
func (c Config) StorageBackend() string {
	switch b := strings.ToLower(c.Storage.Backend); {
	case b != "":
		return b
	case c.Postgres.URL != "":
		return "postgres"
	case c.Redis.Addr != "":
		return "redis"
	default:
		return "memory"
	}
}

// DefaultCacheTTL bounds how stale a shared snapshot may be served.
const DefaultCacheTTL = 30 * time.Second

// CacheTTL is the read cache lifetime for the selected backend; zero for memory.
func (c Config) CacheTTL() time.Duration {
	switch c.StorageBackend() {
	case "redis":
		return TTLDuration(c.Redis.CacheTTL, DefaultCacheTTL)
	case "postgres":
		return TTLDuration(c.Postgres.CacheTTL, DefaultCacheTTL)
	default:
		return 0
	}
}

// LogLevel maps the configured level name, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

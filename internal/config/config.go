package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`
	Backend  BackendConfig  `yaml:"backend"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	CORSOrigins   []string      `yaml:"corsOrigins"`
	WSIdleTimeout time.Duration `yaml:"wsIdleTimeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AdminConfig struct {
	Password  string        `yaml:"password"`
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

type BackendConfig struct {
	SyncInterval  time.Duration `yaml:"syncInterval"`
	SyncBatchSize int           `yaml:"syncBatchSize"`
	ReapInterval  time.Duration `yaml:"reapInterval"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"maxSize"` // MB
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"` // days
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML file at path (missing file falls back to defaults),
// applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if cfg.Admin.Password != "" && cfg.Admin.JWTSecret == "" {
		return nil, fmt.Errorf("admin.jwtSecret is required when admin.password is set")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8484,
			CORSOrigins:   []string{"http://localhost:3000"},
			WSIdleTimeout: 2 * time.Minute,
		},
		Database: DatabaseConfig{Path: "retroim.db"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Admin:    AdminConfig{TokenTTL: time.Hour},
		Backend: BackendConfig{
			SyncInterval:  time.Second,
			SyncBatchSize: 100,
			ReapInterval:  10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/retroim.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

func overrideWithEnv(cfg *Config) {
	if v := getEnv("SERVER_HOST", ""); v != "" {
		cfg.Server.Host = v
	}
	if v := getEnvInt("SERVER_PORT", 0); v > 0 {
		cfg.Server.Port = v
	}
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Server.CORSOrigins = parts
	}
	if v := getEnvDuration("WS_IDLE_TIMEOUT", 0); v > 0 {
		cfg.Server.WSIdleTimeout = v
	}

	if v := getEnv("DB_PATH", ""); v != "" {
		cfg.Database.Path = v
	}

	if v := getEnv("REDIS_ENABLED", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		cfg.Redis.Password = v
	}
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		cfg.Redis.DB = v
	}

	if v := getEnv("ADMIN_PASSWORD", ""); v != "" {
		cfg.Admin.Password = v
	}
	if v := getEnv("ADMIN_JWT_SECRET", ""); v != "" {
		cfg.Admin.JWTSecret = v
	}
	if v := getEnvDuration("ADMIN_TOKEN_TTL", 0); v > 0 {
		cfg.Admin.TokenTTL = v
	}

	if v := getEnvDuration("SYNC_INTERVAL", 0); v > 0 {
		cfg.Backend.SyncInterval = v
	}
	if v := getEnvInt("SYNC_BATCH_SIZE", 0); v > 0 {
		cfg.Backend.SyncBatchSize = v
	}
	if v := getEnvDuration("REAP_INTERVAL", 0); v > 0 {
		cfg.Backend.ReapInterval = v
	}

	if v := getEnv("LOG_LEVEL", ""); v != "" {
		cfg.Log.Level = v
	}
	if v := getEnv("LOG_FILENAME", ""); v != "" {
		cfg.Log.Filename = v
	}
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

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
	Auth     AuthConfig     `yaml:"auth"`
	Tenancy  TenancyConfig  `yaml:"tenancy"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenDuration string `yaml:"token_duration"` // e.g. "24h"
	// IngestKeyHash is the bcrypt hash of the ingest API key exchanged for
	// tokens at /api/v1/auth/token.
	IngestKeyHash string `yaml:"ingest_key_hash"`
}

type TenancyConfig struct {
	Header           string `yaml:"header"`
	DefaultWorkspace string `yaml:"default_workspace"`
}

type MetricsConfig struct {
	// RefreshInterval drives the background report refresher; zero disables it.
	RefreshInterval string `yaml:"refresh_interval"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) TokenDuration() time.Duration {
	dur, err := time.ParseDuration(c.Auth.TokenDuration)
	if err != nil || dur <= 0 {
		return 24 * time.Hour
	}
	return dur
}

func (c *Config) MetricsRefreshInterval() time.Duration {
	if c.Metrics.RefreshInterval == "" {
		return 0
	}
	dur, err := time.ParseDuration(c.Metrics.RefreshInterval)
	if err != nil || dur < 0 {
		return 0
	}
	return dur
}

func (c *Config) ValidateServe() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("DOCGRAPH_JWT_SECRET must be set to a non-default value")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("DOCGRAPH_JWT_SECRET must be at least 16 characters (current length: %d)", len(c.Auth.JWTSecret))
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be configured")
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 9621,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "docgraph.db",
		},
		Auth: AuthConfig{
			JWTSecret:     "change-me-in-production",
			TokenDuration: "24h",
		},
		Tenancy: TenancyConfig{
			Header: "X-Docgraph-Workspace",
		},
		Metrics: MetricsConfig{
			RefreshInterval: "1m",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DOCGRAPH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DOCGRAPH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DOCGRAPH_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DOCGRAPH_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DOCGRAPH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DOCGRAPH_TOKEN_DURATION"); v != "" {
		cfg.Auth.TokenDuration = v
	}
	if v := os.Getenv("DOCGRAPH_INGEST_KEY_HASH"); v != "" {
		cfg.Auth.IngestKeyHash = v
	}
	if v := os.Getenv("DOCGRAPH_WORKSPACE_HEADER"); v != "" {
		cfg.Tenancy.Header = v
	}
	if v := os.Getenv("DOCGRAPH_DEFAULT_WORKSPACE"); v != "" {
		cfg.Tenancy.DefaultWorkspace = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCGRAPH_METRICS_REFRESH_INTERVAL"); v != "" {
		cfg.Metrics.RefreshInterval = v
	}
}

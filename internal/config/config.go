package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "github.com/lewisdonovan/isleno-sub001/libs/config"
)

// Config defines budget service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"BUDGET_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"BUDGET_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr       string `yaml:"addr" env:"BUDGET_REDIS_ADDR"`
		Password   string `yaml:"password" env:"BUDGET_REDIS_PASSWORD"`
		DB         int    `yaml:"db" env:"BUDGET_REDIS_DB"`
		TTLSeconds int    `yaml:"ttlSeconds" env:"BUDGET_REDIS_TTL"`
	} `yaml:"redis"`
	ERP struct {
		BaseURL        string `yaml:"baseUrl" env:"BUDGET_ERP_BASE_URL"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"BUDGET_ERP_TIMEOUT"`
	} `yaml:"erp"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"BUDGET_JWT_SECRET"`
	} `yaml:"auth"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8086"
	cfg.Redis.TTLSeconds = 86400
	cfg.ERP.TimeoutSeconds = 10

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.ERP.BaseURL) == "" {
		return nil, errors.New("config: erp base url required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	// Redis addr optional: an empty addr degrades ledger persistence to
	// in-memory only.
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8086"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ERPTimeout returns the ERP client timeout as duration.
func (c *Config) ERPTimeout() time.Duration {
	if c.ERP.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ERP.TimeoutSeconds) * time.Second
}

// LedgerTTL returns the session ledger storage TTL.
func (c *Config) LedgerTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

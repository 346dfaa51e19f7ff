package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from configs/.env and the
// environment.
type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	LogFormat   string
	JWTSecret   string
	CORSOrigins []string

	Database DatabaseConfig
	Redis    RedisConfig
	Workflow WorkflowConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres connection URL
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig is optional; an empty Addr disables the Redis publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type WorkflowConfig struct {
	AutoArchiveOnValidate bool
	ArchiveSweepDays      int
	NotifyTimeout         time.Duration
}

const devJWTSecret = "default_super_secret_key"

// Load reads envFile when present, then the environment. It fails in
// release mode without a JWT secret.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// a missing file is fine, variables may come from the environment
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CHANNEL", "mailflow:status")
	v.SetDefault("AUTO_ARCHIVE_ON_VALIDATE", true)
	v.SetDefault("ARCHIVE_SWEEP_DAYS", 7)
	v.SetDefault("NOTIFY_TIMEOUT", "10s")

	cfg := &Config{
		Port:        v.GetString("PORT"),
		GinMode:     v.GetString("GIN_MODE"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Channel:  v.GetString("REDIS_CHANNEL"),
		},
		Workflow: WorkflowConfig{
			AutoArchiveOnValidate: v.GetBool("AUTO_ARCHIVE_ON_VALIDATE"),
			ArchiveSweepDays:      v.GetInt("ARCHIVE_SWEEP_DAYS"),
			NotifyTimeout:         v.GetDuration("NOTIFY_TIMEOUT"),
		},
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return nil, errors.New("JWT_SECRET environment variable is required in release mode")
		}
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.Workflow.ArchiveSweepDays < 0 {
		cfg.Workflow.ArchiveSweepDays = 7
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

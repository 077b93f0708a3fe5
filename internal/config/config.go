// Package config loads fleetd's process configuration from environment
// variables via struct tags, in the same style the rest of the wisbric
// stack uses for its own services.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Mode selects the runtime mode: "server" (healthz/metrics only),
	// "worker" (runs the supervisor), or "migrate" (applies migrations then exits).
	Mode string `env:"FLEETD_MODE" envDefault:"worker"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"fleetd"`
	DBUser     string `env:"DB_USER" envDefault:"fleetd"`
	DBPassword string `env:"DB_PASSWORD"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// CredentialVault
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Redis (event fan-out)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics / healthz surface
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// CertRotator
	CertCheckIntervalSeconds    int `env:"CHECK_INTERVAL" envDefault:"86400"`
	CertNotificationThresholdDays int `env:"NOTIFICATION_THRESHOLD" envDefault:"7"`

	// UserSyncWorker
	UserSyncIntervalSeconds int `env:"SYNC_INTERVAL" envDefault:"30"`
	UserSyncBatchSize       int `env:"BATCH_SIZE" envDefault:"10"`

	// StatsCollector
	StatsIntervalSeconds int `env:"STATS_INTERVAL" envDefault:"60"`

	// BackupScheduler
	BackupBackendType    string `env:"BACKUP_BACKEND_TYPE" envDefault:"local"`
	BackupRetentionDays  int    `env:"BACKUP_RETENTION_DAYS" envDefault:"30"`
	BackupLocalDir       string `env:"BACKUP_LOCAL_DIR" envDefault:"/var/lib/fleetd/backups"`
	BackupS3Bucket       string `env:"BACKUP_S3_BUCKET"`
	BackupS3Prefix       string `env:"BACKUP_S3_PREFIX"`
	BackupS3Region       string `env:"BACKUP_S3_REGION" envDefault:"us-east-1"`

	// Notifications
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// DatabaseURL builds a postgres connection string from the discrete DB_* fields.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

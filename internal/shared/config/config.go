package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	EventStream   EventStreamConfig
	Auth          AuthConfig
	Inference     InferenceConfig
	Scheduler     SchedulerConfig
	Notifications NotificationConfig
	StaffDir      StaffDirConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// StorageConfig selects the persistence backend for cases and follow-ups.
// Exactly one backend is active per entity class.
type StorageConfig struct {
	// Backend: "memory" or "postgres"
	Backend string
}

// EventStreamConfig holds configuration for the durable event stream
// (EventStoreDB) used by the audit trail. Optional.
type EventStreamConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
	// Enforce requires a bearer token on API routes
	Enforce bool
}

// InferenceConfig holds configuration for the optional external
// symptom-inference service.
type InferenceConfig struct {
	URL     string
	Enabled bool
	// Timeout bounds the classify call; on expiry triage falls back
	// to rule-based output
	Timeout time.Duration
}

// SchedulerConfig holds configuration for the follow-up scheduling pass.
type SchedulerConfig struct {
	// TickInterval between scheduling passes
	TickInterval time.Duration
	// ResolvedGracePeriod before a resolved case auto-closes
	ResolvedGracePeriod time.Duration
}

type NotificationConfig struct {
	Workers    int
	BufferSize int
	// WebhookURL for the outbound dispatch provider; empty selects the
	// log-only provider
	WebhookURL string
}

// StaffDirConfig selects the staff directory source.
type StaffDirConfig struct {
	// Source: "memory" or "legacy_his"
	Source string
	// LegacyDSN is the SQL Server connection string for the hospital
	// information system roster
	LegacyDSN string
	// RosterTable within the legacy HIS
	RosterTable string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "carebridge"),
			Password: getEnv("DB_PASSWORD", "carebridge"),
			Database: getEnv("DB_NAME", "carebridge"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "memory"),
		},
		EventStream: EventStreamConfig{
			Enabled:  getEnvBool("EVENTSTREAM_ENABLED", false),
			Host:     getEnv("EVENTSTREAM_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTREAM_PORT", 2113),
			Insecure: getEnvBool("EVENTSTREAM_INSECURE", true),
			Username: getEnv("EVENTSTREAM_USERNAME", ""),
			Password: getEnv("EVENTSTREAM_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Enforce:   getEnvBool("AUTH_ENFORCE", false),
		},
		Inference: InferenceConfig{
			URL:     getEnv("INFERENCE_URL", "http://localhost:5000"),
			Enabled: getEnvBool("INFERENCE_ENABLED", false),
			Timeout: getEnvDuration("INFERENCE_TIMEOUT", 3*time.Second),
		},
		Scheduler: SchedulerConfig{
			TickInterval:        getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			ResolvedGracePeriod: getEnvDuration("SCHEDULER_RESOLVED_GRACE", 72*time.Hour),
		},
		Notifications: NotificationConfig{
			Workers:    getEnvInt("NOTIFY_WORKERS", 4),
			BufferSize: getEnvInt("NOTIFY_BUFFER_SIZE", 1000),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		StaffDir: StaffDirConfig{
			Source:      getEnv("STAFFDIR_SOURCE", "memory"),
			LegacyDSN:   getEnv("STAFFDIR_LEGACY_DSN", ""),
			RosterTable: getEnv("STAFFDIR_ROSTER_TABLE", "dbo.StaffRoster"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

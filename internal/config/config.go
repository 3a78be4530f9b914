// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/school-platform/attendance-service/internal/store"
)

// Config holds all service configuration.
type Config struct {
	Environment string
	Server      ServerConfig
	Groups      GroupsConfig
	Attendance  AttendanceConfig
	Datasets    DatasetsConfig
	Backup      BackupConfig
	Broker      BrokerConfig
	Auth        AuthConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	HTTPPort        int
	GracefulTimeout time.Duration
}

// GroupsConfig maps each instance group to its redis connection URLs.
// Every URL carries its own credentials (redis://:token@host:port/db).
type GroupsConfig struct {
	URLs         map[store.Group][]string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AttendanceConfig holds the civil-time and expiration policy settings.
type AttendanceConfig struct {
	// TimezoneOffsetHours is the fixed civil timezone offset from UTC.
	TimezoneOffsetHours int
	// CutoffHour is the hour (0-23) at which attendance records expire.
	CutoffHour int
	// SimulatedClockOffset shifts the policy's notion of "now" outside
	// production. Must be zero in production.
	SimulatedClockOffset time.Duration
}

// DatasetsConfig holds the tiered fetch settings.
type DatasetsConfig struct {
	PrimaryBaseURL string
	FetchTimeout   time.Duration
	// TTLs overrides the per-dataset local cache duration by dataset name.
	TTLs map[string]time.Duration
}

// BackupConfig holds the backup object store (S3) settings.
type BackupConfig struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// BrokerConfig holds message broker configuration for dataset invalidation.
type BrokerConfig struct {
	Type    string // "rabbitmq" or "kafka"
	URL     string
	Topic   string
	GroupID string
	Enabled bool
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LoggingConfig holds logging-service client configuration.
type LoggingConfig struct {
	ServiceAddress string
	BatchSize      int
	FlushInterval  time.Duration
	BufferSize     int
	Enabled        bool
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			HTTPPort:        getEnvInt("SERVER_HTTP_PORT", 8080),
			GracefulTimeout: getEnvDuration("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
		},
		Groups: GroupsConfig{
			URLs: map[store.Group][]string{
				store.GroupStaff:     getEnvStringSlice("REDIS_STAFF_URLS", []string{"redis://localhost:6379/0"}),
				store.GroupSecondary: getEnvStringSlice("REDIS_SECONDARY_URLS", []string{"redis://localhost:6379/1"}),
				store.GroupPrimary:   getEnvStringSlice("REDIS_PRIMARY_URLS", []string{"redis://localhost:6379/2"}),
				store.GroupReports:   getEnvStringSlice("REDIS_REPORTS_URLS", []string{"redis://localhost:6379/3"}),
			},
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Attendance: AttendanceConfig{
			TimezoneOffsetHours:  getEnvInt("ATTENDANCE_TZ_OFFSET_HOURS", -5),
			CutoffHour:           getEnvInt("ATTENDANCE_CUTOFF_HOUR", 20),
			SimulatedClockOffset: getEnvDuration("ATTENDANCE_SIMULATED_CLOCK_OFFSET", 0),
		},
		Datasets: DatasetsConfig{
			PrimaryBaseURL: getEnv("DATASETS_PRIMARY_BASE_URL", ""),
			FetchTimeout:   getEnvDuration("DATASETS_FETCH_TIMEOUT", 10*time.Second),
			TTLs:           getEnvDurationMap("DATASETS_TTLS"),
		},
		Backup: BackupConfig{
			Region:          getEnv("BACKUP_S3_REGION", "us-east-1"),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("BACKUP_S3_USE_PATH_STYLE", false),
		},
		Broker: BrokerConfig{
			Type:    getEnv("BROKER_TYPE", "rabbitmq"),
			URL:     getEnv("BROKER_URL", ""),
			Topic:   getEnv("BROKER_TOPIC", "dataset-invalidation"),
			GroupID: getEnv("BROKER_GROUP_ID", "attendance-service"),
			Enabled: getEnvBool("BROKER_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", "attendance-service"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Logging: LoggingConfig{
			ServiceAddress: getEnv("LOGGING_SERVICE_ADDRESS", "localhost:50052"),
			BatchSize:      getEnvInt("LOGGING_BATCH_SIZE", 100),
			FlushInterval:  getEnvDuration("LOGGING_FLUSH_INTERVAL", 5*time.Second),
			BufferSize:     getEnvInt("LOGGING_BUFFER_SIZE", 10000),
			Enabled:        getEnvBool("LOGGING_ENABLED", false),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "SERVER_HTTP_PORT must be between 1 and 65535")
	}

	for _, group := range store.Groups {
		urls := c.Groups.URLs[group]
		if len(urls) == 0 {
			errs = append(errs, fmt.Sprintf("group %q has no configured instances", group))
		}
		for _, u := range urls {
			if strings.TrimSpace(u) == "" {
				errs = append(errs, fmt.Sprintf("group %q has an empty instance URL", group))
			}
		}
	}

	if c.Groups.PoolSize <= 0 {
		errs = append(errs, "REDIS_POOL_SIZE must be positive")
	}

	if c.Attendance.CutoffHour < 0 || c.Attendance.CutoffHour > 23 {
		errs = append(errs, "ATTENDANCE_CUTOFF_HOUR must be between 0 and 23")
	}

	if c.Attendance.TimezoneOffsetHours < -12 || c.Attendance.TimezoneOffsetHours > 14 {
		errs = append(errs, "ATTENDANCE_TZ_OFFSET_HOURS must be between -12 and 14")
	}

	if c.Environment == "production" && c.Attendance.SimulatedClockOffset != 0 {
		errs = append(errs, "ATTENDANCE_SIMULATED_CLOCK_OFFSET must be zero in production")
	}

	if c.Datasets.FetchTimeout <= 0 {
		errs = append(errs, "DATASETS_FETCH_TIMEOUT must be positive")
	}

	if c.Broker.Enabled {
		if c.Broker.URL == "" {
			errs = append(errs, "BROKER_URL is required when the broker is enabled")
		}
		brokerType := strings.ToLower(c.Broker.Type)
		if brokerType != "rabbitmq" && brokerType != "kafka" {
			errs = append(errs, "BROKER_TYPE must be 'rabbitmq' or 'kafka'")
		}
	}

	if c.Logging.Enabled && c.Logging.ServiceAddress == "" {
		errs = append(errs, "LOGGING_SERVICE_ADDRESS is required when logging is enabled")
	}

	if c.Logging.BatchSize <= 0 {
		errs = append(errs, "LOGGING_BATCH_SIZE must be positive")
	}

	if len(errs) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(errs, "; "))
	}

	return nil
}

// LogSafe returns a copy of config with sensitive values masked.
func (c *Config) LogSafe() map[string]interface{} {
	groups := make(map[string]interface{}, len(c.Groups.URLs))
	for group, urls := range c.Groups.URLs {
		groups[group.String()] = fmt.Sprintf("%d instance(s)", len(urls))
	}
	return map[string]interface{}{
		"environment": c.Environment,
		"server": map[string]interface{}{
			"http_port":        c.Server.HTTPPort,
			"graceful_timeout": c.Server.GracefulTimeout.String(),
		},
		"groups": groups,
		"attendance": map[string]interface{}{
			"tz_offset_hours":        c.Attendance.TimezoneOffsetHours,
			"cutoff_hour":            c.Attendance.CutoffHour,
			"simulated_clock_offset": c.Attendance.SimulatedClockOffset.String(),
		},
		"datasets": map[string]interface{}{
			"primary_base_url": c.Datasets.PrimaryBaseURL,
			"fetch_timeout":    c.Datasets.FetchTimeout.String(),
		},
		"backup": map[string]interface{}{
			"region":            c.Backup.Region,
			"bucket":            c.Backup.Bucket,
			"endpoint":          c.Backup.Endpoint,
			"access_key_id":     maskSecret(c.Backup.AccessKeyID),
			"secret_access_key": maskSecret(c.Backup.SecretAccessKey),
		},
		"broker": map[string]interface{}{
			"enabled":  c.Broker.Enabled,
			"type":     c.Broker.Type,
			"url":      maskURL(c.Broker.URL),
			"topic":    c.Broker.Topic,
			"group_id": c.Broker.GroupID,
		},
		"auth": map[string]interface{}{
			"jwt_secret": maskSecret(c.Auth.JWTSecret),
			"jwt_issuer": c.Auth.JWTIssuer,
		},
		"metrics": map[string]interface{}{
			"enabled": c.Metrics.Enabled,
			"path":    c.Metrics.Path,
		},
		"logging": map[string]interface{}{
			"service_address": c.Logging.ServiceAddress,
			"enabled":         c.Logging.Enabled,
		},
		"tracing": map[string]interface{}{
			"enabled":  c.Tracing.Enabled,
			"endpoint": c.Tracing.Endpoint,
		},
	}
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
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// getEnvDurationMap parses "name=1h,other=30m" style values.
func getEnvDurationMap(key string) map[string]time.Duration {
	out := make(map[string]time.Duration)
	value := os.Getenv(key)
	if value == "" {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		name, raw, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			out[strings.TrimSpace(name)] = d
		}
	}
	return out
}

func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set, %d chars>", len(s))
}

func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	return "<set>"
}

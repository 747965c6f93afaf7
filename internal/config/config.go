// Package config loads and validates the marketplace pipeline configuration
// using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MKT_ prefix (e.g., MKT_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment
// variables in containerized deployments.
//
// Scoring weights and recommendation thresholds live here rather than in the
// scoring package so review policy can be tuned per deployment without a
// rebuild.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketplace-registry/marketplace-registry/internal/audit"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Scoring       ScoringConfig       `mapstructure:"scoring"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Audit         AuditConfig         `mapstructure:"audit"`
}

// AuditConfig routes security-relevant events to external destinations. The
// shipper entries are defined in the audit package; an empty list disables
// the trail entirely.
type AuditConfig struct {
	Shippers []audit.ShipperConfig `mapstructure:"shippers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the server address in host:port format.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Local          LocalStorageConfig `mapstructure:"local"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
}

// LocalStorageConfig holds local filesystem storage configuration.
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3StorageConfig holds S3-compatible storage configuration.
type S3StorageConfig struct {
	// Endpoint is an optional S3-compatible endpoint URL (MinIO etc.).
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// Authentication method: "default" (AWS credential chain) or "static".
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// GCSStorageConfig holds Google Cloud Storage configuration.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	// CredentialsFile is the path to a service account JSON key file; empty
	// means Application Default Credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
	// Endpoint is an optional custom endpoint (emulators).
	Endpoint string `mapstructure:"endpoint"`
}

// AzureStorageConfig holds Azure Blob Storage configuration.
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// QueueConfig selects and configures the QA work queue backend.
type QueueConfig struct {
	// Backend is "memory" (single-process, default) or "redis" (shared FIFO
	// for horizontally scaled workers).
	Backend string `mapstructure:"backend"`
	// Key is the Redis list key holding queued module IDs.
	Key      string `mapstructure:"key"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// BufferSize bounds the in-memory backend; enqueue fails when full rather
	// than blocking the registration request.
	BufferSize int `mapstructure:"buffer_size"`
}

// IngestionConfig bounds the package acquisition paths.
// WorkerConfig tunes the QA worker and the reclaimer that rescues orphaned
// runs.
type WorkerConfig struct {
	// Concurrency is the number of QA consumers; the atomic claim keeps
	// concurrent consumers from double-processing a module.
	Concurrency int `mapstructure:"concurrency"`
	// ReclaimInterval is how often the reclaimer scans for stranded modules.
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	// StuckGraceMinutes is how long a module may sit in qa_in_progress before
	// it is reset to pending.
	StuckGraceMinutes int `mapstructure:"stuck_grace_minutes"`
	// PendingAgeMinutes is how long a pending module may wait before it is
	// re-enqueued, covering lost enqueues.
	PendingAgeMinutes int `mapstructure:"pending_age_minutes"`
}

type IngestionConfig struct {
	// ScratchDir is where submissions are staged before validation; contents
	// are removed on both success and failure.
	ScratchDir string `mapstructure:"scratch_dir"`
	// MaxArchiveMB caps uploaded and downloaded archive size.
	MaxArchiveMB int64 `mapstructure:"max_archive_mb"`
	// DownloadTimeout bounds register-from-URL transfers.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// CloneTimeout bounds register-from-VCS clones.
	CloneTimeout time.Duration `mapstructure:"clone_timeout"`
	// RequireSignature rejects archives without a valid detached signature
	// when a trusted key is configured.
	RequireSignature bool `mapstructure:"require_signature"`
	// TrustedSigningKey is an ASCII-armored OpenPGP public key; empty disables
	// signature verification.
	TrustedSigningKey string `mapstructure:"trusted_signing_key"`
}

// MaxArchiveBytes returns the archive size bound in bytes.
func (c *IngestionConfig) MaxArchiveBytes() int64 {
	return c.MaxArchiveMB * 1024 * 1024
}

// AnalysisConfig bounds and tunes the analyzer probes.
type AnalysisConfig struct {
	// TestTimeout bounds each discovered test suite run.
	TestTimeout time.Duration `mapstructure:"test_timeout"`
	// RunTests disables test execution entirely when false (the test
	// sub-scores degrade to zero); useful on hosts without sandboxing.
	RunTests bool `mapstructure:"run_tests"`
	// VulnerableDependencies lists known-bad dependency names flagged by the
	// security probe.
	VulnerableDependencies []string `mapstructure:"vulnerable_dependencies"`
}

// ScoringConfig carries the scoring weights and recommendation thresholds.
// Defaults reproduce the shipped policy; all values are tunable per deployment.
type ScoringConfig struct {
	UnitTestPoints        float64 `mapstructure:"unit_test_points"`
	IntegrationTestPoints float64 `mapstructure:"integration_test_points"`
	APITestPoints         float64 `mapstructure:"api_test_points"`
	SecurityWeight        float64 `mapstructure:"security_weight"`
	ComplexityWeight      float64 `mapstructure:"complexity_weight"`
	DocWeight             float64 `mapstructure:"doc_weight"`
	MaintainabilityWeight float64 `mapstructure:"maintainability_weight"`
	DuplicationWeight     float64 `mapstructure:"duplication_weight"`

	ApproveOverallMin  float64 `mapstructure:"approve_overall_min"`
	ApproveSecurityMin float64 `mapstructure:"approve_security_min"`
	ReviewOverallMin   float64 `mapstructure:"review_overall_min"`
	ReviewSecurityMin  float64 `mapstructure:"review_security_min"`

	SeverityWeightHigh   float64 `mapstructure:"severity_weight_high"`
	SeverityWeightMedium float64 `mapstructure:"severity_weight_medium"`
	SeverityWeightLow    float64 `mapstructure:"severity_weight_low"`
	FailedCheckPenalty   float64 `mapstructure:"failed_check_penalty"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration.
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// NotificationsConfig holds settings for outbound notification emails sent on
// QA completion and approval decisions.
type NotificationsConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds outbound mail server configuration.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AuthConfig holds the actor-identity configuration. Token issuance and login
// flows are external; this service only verifies.
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
	JWT     JWTConfig    `mapstructure:"jwt"`
}

// JWTConfig holds session token settings. The secret is required whenever
// token auth is enabled; it supports ${VAR} expansion like other secrets.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	Issuer   string        `mapstructure:"issuer"`
}

// APIKeyConfig holds API key verification configuration.
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// bindEnvVars explicitly binds environment variables to config keys. This is
// necessary because AutomaticEnv() does not cooperate with Unmarshal() on
// nested structs.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Storage
		"storage.default_backend",
		"storage.local.base_path",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.gcs.bucket",
		"storage.gcs.credentials_file",
		"storage.gcs.endpoint",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",

		// Queue
		"queue.backend",
		"queue.key",
		"queue.addr",
		"queue.password",
		"queue.db",
		"queue.buffer_size",

		// Worker
		"worker.concurrency",
		"worker.reclaim_interval",
		"worker.stuck_grace_minutes",
		"worker.pending_age_minutes",

		// Ingestion
		"ingestion.scratch_dir",
		"ingestion.max_archive_mb",
		"ingestion.download_timeout",
		"ingestion.clone_timeout",
		"ingestion.require_signature",
		"ingestion.trusted_signing_key",

		// Analysis
		"analysis.test_timeout",
		"analysis.run_tests",
		"analysis.vulnerable_dependencies",

		// Scoring
		"scoring.unit_test_points",
		"scoring.integration_test_points",
		"scoring.api_test_points",
		"scoring.security_weight",
		"scoring.complexity_weight",
		"scoring.doc_weight",
		"scoring.maintainability_weight",
		"scoring.duplication_weight",
		"scoring.approve_overall_min",
		"scoring.approve_security_min",
		"scoring.review_overall_min",
		"scoring.review_security_min",
		"scoring.severity_weight_high",
		"scoring.severity_weight_medium",
		"scoring.severity_weight_low",
		"scoring.failed_check_penalty",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Notifications
		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",

		// Auth
		"auth.api_keys.enabled",
		"auth.api_keys.prefix",
		"auth.jwt.secret",
		"auth.jwt.token_ttl",
		"auth.jwt.issuer",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/marketplace-registry")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables.
	}

	v.SetEnvPrefix("MKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in sensitive fields so secrets can be injected
	// indirectly through generic environment variables.
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Storage.S3.SecretAccessKey = os.ExpandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.Azure.AccountKey = os.ExpandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Queue.Password = os.ExpandEnv(cfg.Queue.Password)
	cfg.Notifications.SMTP.Password = os.ExpandEnv(cfg.Notifications.SMTP.Password)
	cfg.Auth.JWT.Secret = os.ExpandEnv(cfg.Auth.JWT.Secret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "marketplace")
	v.SetDefault("database.user", "marketplace")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")

	// Queue defaults
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.key", "marketplace:qa_queue")
	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.db", 0)
	v.SetDefault("queue.buffer_size", 1024)

	// Worker defaults
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.reclaim_interval", "5m")
	v.SetDefault("worker.stuck_grace_minutes", 30)
	v.SetDefault("worker.pending_age_minutes", 10)

	// Ingestion defaults
	v.SetDefault("ingestion.scratch_dir", os.TempDir())
	v.SetDefault("ingestion.max_archive_mb", 50)
	v.SetDefault("ingestion.download_timeout", "2m")
	v.SetDefault("ingestion.clone_timeout", "3m")
	v.SetDefault("ingestion.require_signature", false)

	// Analysis defaults
	v.SetDefault("analysis.test_timeout", "300s")
	v.SetDefault("analysis.run_tests", true)
	v.SetDefault("analysis.vulnerable_dependencies", []string{})

	// Scoring defaults — the shipped review policy.
	v.SetDefault("scoring.unit_test_points", 15.0)
	v.SetDefault("scoring.integration_test_points", 10.0)
	v.SetDefault("scoring.api_test_points", 5.0)
	v.SetDefault("scoring.security_weight", 0.4)
	v.SetDefault("scoring.complexity_weight", 0.1)
	v.SetDefault("scoring.doc_weight", 0.1)
	v.SetDefault("scoring.maintainability_weight", 0.05)
	v.SetDefault("scoring.duplication_weight", 0.05)
	v.SetDefault("scoring.approve_overall_min", 80.0)
	v.SetDefault("scoring.approve_security_min", 80.0)
	v.SetDefault("scoring.review_overall_min", 60.0)
	v.SetDefault("scoring.review_security_min", 70.0)
	v.SetDefault("scoring.severity_weight_high", 10.0)
	v.SetDefault("scoring.severity_weight_medium", 5.0)
	v.SetDefault("scoring.severity_weight_low", 2.0)
	v.SetDefault("scoring.failed_check_penalty", 20.0)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "marketplace-registry")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)

	// Auth defaults
	v.SetDefault("auth.api_keys.enabled", true)
	v.SetDefault("auth.api_keys.prefix", "mkt_")
	v.SetDefault("auth.jwt.token_ttl", "1h")
	v.SetDefault("auth.jwt.issuer", "marketplace-registry")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	validBackends := map[string]bool{"local": true, "s3": true, "gcs": true, "azure": true}
	if !validBackends[c.Storage.DefaultBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be local, s3, gcs, or azure)", c.Storage.DefaultBackend)
	}
	switch c.Storage.DefaultBackend {
	case "local":
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using s3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using s3 backend")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required when using gcs backend")
		}
	case "azure":
		if c.Storage.Azure.AccountName == "" || c.Storage.Azure.AccountKey == "" || c.Storage.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.account_name, account_key, and container_name are required when using azure backend")
		}
	}

	switch c.Queue.Backend {
	case "memory":
		if c.Queue.BufferSize < 1 {
			return fmt.Errorf("queue.buffer_size must be positive")
		}
	case "redis":
		if c.Queue.Addr == "" {
			return fmt.Errorf("queue.addr is required when using redis queue backend")
		}
	default:
		return fmt.Errorf("invalid queue backend: %s (must be memory or redis)", c.Queue.Backend)
	}

	if c.Ingestion.MaxArchiveMB < 1 {
		return fmt.Errorf("ingestion.max_archive_mb must be positive")
	}
	if c.Ingestion.RequireSignature && c.Ingestion.TrustedSigningKey == "" {
		return fmt.Errorf("ingestion.trusted_signing_key is required when ingestion.require_signature is enabled")
	}

	if c.Analysis.TestTimeout <= 0 {
		return fmt.Errorf("analysis.test_timeout must be positive")
	}

	if err := c.Scoring.validate(); err != nil {
		return err
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// validate sanity-checks the scoring policy so a bad deploy fails at startup
// instead of silently mis-scoring submissions.
func (s *ScoringConfig) validate() error {
	if s.UnitTestPoints < 0 || s.IntegrationTestPoints < 0 || s.APITestPoints < 0 {
		return fmt.Errorf("scoring test point values must be non-negative")
	}
	if s.SecurityWeight < 0 || s.SecurityWeight > 1 {
		return fmt.Errorf("scoring.security_weight must be in [0,1]")
	}
	if s.ApproveOverallMin < s.ReviewOverallMin {
		return fmt.Errorf("scoring.approve_overall_min must be >= scoring.review_overall_min")
	}
	if s.ApproveSecurityMin < 0 || s.ApproveSecurityMin > 100 ||
		s.ReviewSecurityMin < 0 || s.ReviewSecurityMin > 100 {
		return fmt.Errorf("scoring security thresholds must be in [0,100]")
	}
	return nil
}

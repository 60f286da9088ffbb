package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lead import service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Import     ImportConfig     `yaml:"import"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	LogLevel    string   `yaml:"log_level"`
	RedactPII   *bool    `yaml:"redact_pii"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// Redaction reports whether contact details are masked in logs. On by default.
func (c ServerConfig) Redaction() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// DatabaseConfig holds the Postgres connection used by the lead store.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds the Redis instance for sessions, outcomes and locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig holds the S3 upload archive settings. Archiving is off when
// S3Bucket is empty.
type StorageConfig struct {
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	AWSProfile      string `yaml:"aws_profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	UploadPrefix    string `yaml:"upload_prefix"`
	ProcessedPrefix string `yaml:"processed_prefix"`
}

// Enabled reports whether an upload archive is configured.
func (c StorageConfig) Enabled() bool {
	return c.S3Bucket != ""
}

// ImportConfig holds the user-facing import defaults.
type ImportConfig struct {
	DefaultStatus      string `yaml:"default_status"`
	DefaultTemperature string `yaml:"default_temperature"`
	SkipDuplicates     bool   `yaml:"skip_duplicates"`
	UpdateExisting     bool   `yaml:"update_existing"`
	FollowUpDays       int    `yaml:"followup_days"`
	MaxFileMB          int    `yaml:"max_file_mb"`
	KeywordsFile       string `yaml:"keywords_file"`
	PreviewRows        int    `yaml:"preview_rows"`
	MaxReportedErrors  int    `yaml:"max_reported_errors"`
	ProgressEvery      int    `yaml:"progress_every"`
	CommitLockMinutes  int    `yaml:"commit_lock_minutes"`
}

// MaxFileBytes returns the upload size limit in bytes.
func (c ImportConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) << 20
}

// CommitLockTTL returns how long a commit lock is held before it expires.
func (c ImportConfig) CommitLockTTL() time.Duration {
	return time.Duration(c.CommitLockMinutes) * time.Minute
}

// ExtractionConfig holds the screenshot extraction service settings.
// Screenshot import is off when BaseURL is empty.
type ExtractionConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c ExtractionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Storage.S3Region == "" {
		cfg.Storage.S3Region = "us-west-2"
	}
	if cfg.Storage.UploadPrefix == "" {
		cfg.Storage.UploadPrefix = "uploads/"
	}
	if cfg.Storage.ProcessedPrefix == "" {
		cfg.Storage.ProcessedPrefix = "processed/"
	}
	if cfg.Import.DefaultStatus == "" {
		cfg.Import.DefaultStatus = "new"
	}
	if cfg.Import.DefaultTemperature == "" {
		cfg.Import.DefaultTemperature = "auto"
	}
	if cfg.Import.MaxFileMB == 0 {
		cfg.Import.MaxFileMB = 10
	}
	if cfg.Import.PreviewRows == 0 {
		cfg.Import.PreviewRows = 20
	}
	if cfg.Import.MaxReportedErrors == 0 {
		cfg.Import.MaxReportedErrors = 10
	}
	if cfg.Import.ProgressEvery == 0 {
		cfg.Import.ProgressEvery = 25
	}
	if cfg.Import.CommitLockMinutes == 0 {
		cfg.Import.CommitLockMinutes = 15
	}
	if cfg.Extraction.TimeoutSeconds == 0 {
		cfg.Extraction.TimeoutSeconds = 60
	}
	if cfg.Extraction.MaxRetries == 0 {
		cfg.Extraction.MaxRetries = 3
	}
}

// LoadFromEnv loads configuration from a YAML file, then applies overrides
// from the environment and an optional .env file. An empty path starts from
// the defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LEADIMPORT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("LEADIMPORT_S3_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("LEADIMPORT_S3_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := os.Getenv("LEADIMPORT_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.S3Region = v
	}
	if v := os.Getenv("EXTRACTION_BASE_URL"); v != "" {
		cfg.Extraction.BaseURL = v
	}
	if v := os.Getenv("EXTRACTION_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return cfg, nil
}

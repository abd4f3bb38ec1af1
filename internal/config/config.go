package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Alert dispatch modes.
const (
	AlertsInline = "inline"
	AlertsQueue  = "queue"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
	StorageS3    = "s3"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	S3       S3Config       `mapstructure:"s3"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the entity store implementation.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置；关闭时实时推送只在本进程内分发。
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AlertsConfig controls how job alerts are fanned out after a job is created.
type AlertsConfig struct {
	Mode string `mapstructure:"mode"`
}

// SweeperConfig controls the expiry sweep.
type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// AuthConfig contains token settings.
type AuthConfig struct {
	JWTSecret             string        `mapstructure:"jwt_secret"`
	AccessTTL             time.Duration `mapstructure:"access_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"` // 仅在启用 Redis 时生效
}

// RealtimeConfig contains websocket settings.
type RealtimeConfig struct {
	RequireToken   bool     `mapstructure:"require_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig selects where application attachments are written.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// S3Config contains AWS S3 settings; empty credentials fall back to the default AWS chain.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// ClamdConfig 为空地址时跳过病毒扫描。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// UploadConfig limits multipart uploads.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is loaded first without overriding variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Realtime.AllowedOrigins = splitList(cfg.Realtime.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gigboard")
	v.SetDefault("database.user", "gigboard")
	v.SetDefault("database.password", "gigboard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("alerts.mode", AlertsInline)
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("auth.access_ttl", 24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("realtime.require_token", true)
	v.SetDefault("realtime.allowed_origins", []string{})
	v.SetDefault("storage.driver", StorageLocal)
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "attachments")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("upload.max_bytes", 10<<20)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.shutdown_timeout":           "API_SHUTDOWN_TIMEOUT",
		"store.driver":                   "STORE_DRIVER",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.enabled":                  "REDIS_ENABLED",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"alerts.mode":                    "ALERTS_MODE",
		"sweeper.interval":               "SWEEPER_INTERVAL",
		"auth.jwt_secret":                "JWT_SECRET",
		"auth.access_ttl":                "JWT_ACCESS_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"realtime.require_token":         "REALTIME_REQUIRE_TOKEN",
		"realtime.allowed_origins":       "REALTIME_ALLOWED_ORIGINS",
		"storage.driver":                 "STORAGE_DRIVER",
		"storage.local_dir":              "STORAGE_LOCAL_DIR",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"s3.region":                      "S3_REGION",
		"s3.bucket":                      "S3_BUCKET",
		"s3.endpoint":                    "S3_ENDPOINT",
		"s3.access_key_id":               "S3_ACCESS_KEY_ID",
		"s3.secret_access_key":           "S3_SECRET_ACCESS_KEY",
		"s3.use_path_style":              "S3_USE_PATH_STYLE",
		"clamd.addr":                     "CLAMD_ADDR",
		"upload.max_bytes":               "UPLOAD_MAX_BYTES",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 兼容环境变量中以逗号分隔的列表。
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	switch cfg.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if err := validateDatabase(cfg.Database); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return errors.New("redis host is required")
		}
		if cfg.Redis.Port <= 0 {
			return errors.New("redis port must be positive")
		}
	}
	switch cfg.Alerts.Mode {
	case AlertsInline:
	case AlertsQueue:
		if !cfg.Redis.Enabled {
			return errors.New("alerts queue mode requires redis")
		}
		if cfg.Store.Driver != StorePostgres {
			return errors.New("alerts queue mode requires the postgres store")
		}
	default:
		return fmt.Errorf("unknown alerts mode %q", cfg.Alerts.Mode)
	}
	if cfg.Sweeper.Interval <= 0 {
		return errors.New("sweeper interval must be positive")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Auth.AccessTTL <= 0 {
		return errors.New("jwt access ttl must be positive")
	}
	if cfg.Auth.LoginRateLimitPerHour <= 0 {
		return errors.New("login rate limit must be positive")
	}
	switch cfg.Storage.Driver {
	case StorageLocal:
		if cfg.Storage.LocalDir == "" {
			return errors.New("storage local dir is required")
		}
	case StorageMinIO:
		if err := validateMinIO(cfg.MinIO); err != nil {
			return err
		}
	case StorageS3:
		if cfg.S3.Region == "" {
			return errors.New("s3 region is required")
		}
		if cfg.S3.Bucket == "" {
			return errors.New("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	return nil
}

func validateDatabase(db DatabaseConfig) error {
	if db.Host == "" {
		return errors.New("database host is required")
	}
	if db.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if db.Name == "" {
		return errors.New("database name is required")
	}
	if db.User == "" {
		return errors.New("database user is required")
	}
	if db.Password == "" {
		return errors.New("database password is required")
	}
	if db.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	return nil
}

func validateMinIO(m MinIOConfig) error {
	if m.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if m.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if m.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if m.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}

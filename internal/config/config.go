package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Backend  BackendConfig
	Editor   EditorConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message broker configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// BackendConfig holds the rendering/OCR backend endpoint
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// EditorConfig holds editor session tuning
type EditorConfig struct {
	DebounceDelay   time.Duration
	EffectCacheSize int
	FrameCacheSize  int
	SeekGuardDelay  time.Duration
	UploadTempDir   string
	UploadChunkSize int64
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
	RateRPS   int
	RateBurst int
}

// MetricsConfig holds the metrics server configuration
type MetricsConfig struct {
	Port int
}

// TracingConfig holds the Jaeger configuration
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "subvision")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "videos")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Backend defaults
	viper.SetDefault("backend.baseURL", "http://localhost:5001")
	viper.SetDefault("backend.timeout", "30s")

	// Editor defaults
	viper.SetDefault("editor.debounceDelay", "500ms")
	viper.SetDefault("editor.effectCacheSize", 30)
	viper.SetDefault("editor.frameCacheSize", 50)
	viper.SetDefault("editor.seekGuardDelay", "150ms")
	viper.SetDefault("editor.uploadTempDir", "/tmp/subvision")
	viper.SetDefault("editor.uploadChunkSize", 5*1024*1024) // 5MB

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")
	viper.SetDefault("auth.rateRPS", 50)
	viper.SetDefault("auth.rateBurst", 100)

	// Metrics defaults
	viper.SetDefault("metrics.port", 9090)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}

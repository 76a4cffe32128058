package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"callinsights-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Database  DatabaseConfig  `json:"database"`
	Insights  InsightsConfig  `json:"insights"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Streaming StreamingConfig `json:"streaming"`
	Messaging MessagingConfig `json:"messaging"`
	Logging   LoggingConfig   `json:"logging"`
}

// HTTPConfig holds the HTTP server configuration
type HTTPConfig struct {
	Port          int           `json:"port" env:"HTTP_PORT" default:"8080"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout   time.Duration `json:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" default:"120s"`
	EnableMetrics bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
}

// DatabaseConfig holds MySQL connection configuration. When Enabled is false
// the service runs against the in-memory store.
type DatabaseConfig struct {
	Enabled         bool          `json:"enabled" env:"DB_ENABLED" default:"false"`
	Host            string        `json:"host" env:"DB_HOST" default:"localhost"`
	Port            int           `json:"port" env:"DB_PORT" default:"3306"`
	Database        string        `json:"database" env:"DB_NAME" default:"callinsights"`
	Username        string        `json:"username" env:"DB_USER" default:"callinsights"`
	Password        string        `json:"-" env:"DB_PASSWORD"`
	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"5m"`
	QueryTimeout    time.Duration `json:"query_timeout" env:"DB_QUERY_TIMEOUT" default:"10s"`
}

// Insight computation variants
const (
	VariantModel    = "model"
	VariantFallback = "fallback"
)

// DefaultFillerWords are excluded from talk-ratio counts unless overridden
// via INSIGHTS_FILLER_WORDS
var DefaultFillerWords = []string{"um", "uh", "er", "ah", "like", "you know", "i mean", "well", "so"}

// InsightsConfig controls the analysis engine: which variant backs the
// embedder and sentiment scorer, the embedding dimensionality, and the
// recommendation fan-out.
type InsightsConfig struct {
	// Variant selects "model" or "fallback" for both model-backed components.
	Variant string `json:"variant" env:"INSIGHTS_VARIANT" default:"fallback"`

	// EmbeddingDim is fixed for the lifetime of a deployment. Changing it
	// invalidates every stored embedding.
	EmbeddingDim int `json:"embedding_dim" env:"INSIGHTS_EMBEDDING_DIM" default:"384"`

	// ModelServiceURL is the base URL of the inference sidecar used by the
	// model variant ("/embed" and "/sentiment" endpoints).
	ModelServiceURL string        `json:"model_service_url" env:"INSIGHTS_MODEL_URL" default:"http://localhost:8501"`
	ModelTimeout    time.Duration `json:"model_timeout" env:"INSIGHTS_MODEL_TIMEOUT" default:"10s"`
	ModelMaxRetries int           `json:"model_max_retries" env:"INSIGHTS_MODEL_MAX_RETRIES" default:"3"`

	// TopK is the number of similar calls returned per recommendation.
	TopK int `json:"top_k" env:"INSIGHTS_TOP_K" default:"5"`

	// FillerWords are excluded from talk-ratio word counts.
	FillerWords []string `json:"filler_words" env:"INSIGHTS_FILLER_WORDS"`
}

// SchedulerConfig controls the nightly recompute run
type SchedulerConfig struct {
	Enabled bool `json:"enabled" env:"SCHEDULER_ENABLED" default:"true"`

	// DailyAt is the wall-clock time of the daily run, "HH:MM" 24h local time.
	DailyAt string `json:"daily_at" env:"SCHEDULER_DAILY_AT" default:"02:30"`
}

// StreamingConfig controls sentiment stream sessions
type StreamingConfig struct {
	// DefaultInterval between sentiment snapshots when the client does not
	// request one in start_streaming.
	DefaultInterval time.Duration `json:"default_interval" env:"STREAM_DEFAULT_INTERVAL" default:"2s"`

	// MinInterval caps how aggressively a client may poll.
	MinInterval time.Duration `json:"min_interval" env:"STREAM_MIN_INTERVAL" default:"500ms"`

	WriteTimeout time.Duration `json:"write_timeout" env:"STREAM_WRITE_TIMEOUT" default:"10s"`
	PingInterval time.Duration `json:"ping_interval" env:"STREAM_PING_INTERVAL" default:"60s"`
}

// MessagingConfig holds AMQP configuration for insight-event publishing.
// Publishing is optional; an empty URL disables it.
type MessagingConfig struct {
	AMQPUrl      string `json:"-" env:"AMQP_URL"`
	AMQPExchange string `json:"amqp_exchange" env:"AMQP_EXCHANGE" default:"callinsights.events"`
	AMQPQueue    string `json:"amqp_queue" env:"AMQP_QUEUE" default:"callinsights_insights"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from .env (when present) and the environment
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	// Try a few .env locations so the service starts from the repo root or
	// from a cmd/ subdirectory during development
	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom, _ = filepath.Abs(envFile)
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}

	config := &Config{}

	if err := loadHTTPConfig(&config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadDatabaseConfig(&config.Database); err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}

	if err := loadInsightsConfig(&config.Insights); err != nil {
		return nil, errors.Wrap(err, "failed to load insights configuration")
	}

	if err := loadSchedulerConfig(&config.Scheduler); err != nil {
		return nil, errors.Wrap(err, "failed to load scheduler configuration")
	}

	loadStreamingConfig(&config.Streaming)
	loadMessagingConfig(&config.Messaging)
	loadLoggingConfig(&config.Logging)

	return config, nil
}

func loadHTTPConfig(cfg *HTTPConfig) error {
	cfg.Port = getEnvInt("HTTP_PORT", 8080)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("invalid HTTP_PORT").WithField("port", cfg.Port)
	}

	cfg.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	cfg.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second)
	cfg.IdleTimeout = getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second)
	cfg.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)

	return nil
}

func loadDatabaseConfig(cfg *DatabaseConfig) error {
	cfg.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvInt("DB_PORT", 3306)
	cfg.Database = getEnv("DB_NAME", "callinsights")
	cfg.Username = getEnv("DB_USER", "callinsights")
	cfg.Password = os.Getenv("DB_PASSWORD")
	cfg.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.QueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", 10*time.Second)

	if cfg.Enabled && cfg.Password == "" {
		return errors.New("DB_PASSWORD is required when DB_ENABLED is true")
	}

	return nil
}

func loadInsightsConfig(cfg *InsightsConfig) error {
	cfg.Variant = strings.ToLower(getEnv("INSIGHTS_VARIANT", VariantFallback))
	if cfg.Variant != VariantModel && cfg.Variant != VariantFallback {
		return errors.New("INSIGHTS_VARIANT must be 'model' or 'fallback'").
			WithField("variant", cfg.Variant)
	}

	cfg.EmbeddingDim = getEnvInt("INSIGHTS_EMBEDDING_DIM", 384)
	if cfg.EmbeddingDim < 8 {
		return errors.New("INSIGHTS_EMBEDDING_DIM too small").
			WithField("embedding_dim", cfg.EmbeddingDim)
	}

	cfg.ModelServiceURL = getEnv("INSIGHTS_MODEL_URL", "http://localhost:8501")
	cfg.ModelTimeout = getEnvDuration("INSIGHTS_MODEL_TIMEOUT", 10*time.Second)
	cfg.ModelMaxRetries = getEnvInt("INSIGHTS_MODEL_MAX_RETRIES", 3)

	cfg.TopK = getEnvInt("INSIGHTS_TOP_K", 5)
	if cfg.TopK < 1 {
		return errors.New("INSIGHTS_TOP_K must be at least 1").WithField("top_k", cfg.TopK)
	}

	if raw := os.Getenv("INSIGHTS_FILLER_WORDS"); raw != "" {
		for _, w := range strings.Split(raw, ",") {
			if w = strings.TrimSpace(strings.ToLower(w)); w != "" {
				cfg.FillerWords = append(cfg.FillerWords, w)
			}
		}
	} else {
		cfg.FillerWords = append(cfg.FillerWords, DefaultFillerWords...)
	}

	return nil
}

func loadSchedulerConfig(cfg *SchedulerConfig) error {
	cfg.Enabled = getEnvBool("SCHEDULER_ENABLED", true)
	cfg.DailyAt = getEnv("SCHEDULER_DAILY_AT", "02:30")

	if _, _, err := ParseDailyAt(cfg.DailyAt); err != nil {
		return errors.Wrap(err, "invalid SCHEDULER_DAILY_AT").
			WithField("daily_at", cfg.DailyAt)
	}

	return nil
}

func loadStreamingConfig(cfg *StreamingConfig) {
	cfg.DefaultInterval = getEnvDuration("STREAM_DEFAULT_INTERVAL", 2*time.Second)
	cfg.MinInterval = getEnvDuration("STREAM_MIN_INTERVAL", 500*time.Millisecond)
	cfg.WriteTimeout = getEnvDuration("STREAM_WRITE_TIMEOUT", 10*time.Second)
	cfg.PingInterval = getEnvDuration("STREAM_PING_INTERVAL", 60*time.Second)
}

func loadMessagingConfig(cfg *MessagingConfig) {
	cfg.AMQPUrl = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "callinsights.events")
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", "callinsights_insights")
}

func loadLoggingConfig(cfg *LoggingConfig) {
	cfg.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Format = strings.ToLower(getEnv("LOG_FORMAT", "json"))
}

// ParseDailyAt parses an "HH:MM" wall-clock time
func ParseDailyAt(value string) (hour, minute int, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}

	return hour, minute, nil
}

// ConfigureLogger applies the logging configuration to a logrus logger
func (c *LoggingConfig) ConfigureLogger(logger *logrus.Logger) {
	switch c.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if c.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

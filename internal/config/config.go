package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// NATS Configuration
	NatsEnabled           bool
	NatsURL               string
	Stream                string
	Subject               string
	Durable               string
	MaxMsgs               int
	MaxAge                time.Duration
	AckWait               time.Duration
	MaxDeliver            int
	MaxAckPending         int
	Concurrency           int
	MonitoringTopic       string
	BackpressureThreshold int
	HeartbeatInterval     time.Duration

	// HTTP Configuration
	HTTPAddr string

	// Model Configuration
	ModelName string
	ModelPath string

	// Output Configuration
	AuditPath string
	DBPath    string
	LogPath   string
	LogLevel  slog.Level
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	cfg := &Config{
		NatsEnabled:           getEnvBool("NATS_ENABLED", true),
		NatsURL:               getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		Stream:                getEnv("STREAM_NAME", "SLEEP"),
		Subject:               getEnv("SUBJECT", "sleep.predict.request"),
		Durable:               getEnv("QUEUE_DURABLE", "sleep-wq"),
		MaxMsgs:               getEnvInt("QUEUE_MAX_MSGS", 2000),
		MaxAge:                getEnvDuration("QUEUE_MAX_AGE", "30s"),
		AckWait:               getEnvDuration("ACK_WAIT", "30s"),
		MaxDeliver:            getEnvInt("MAX_DELIVER", 5),
		MaxAckPending:         getEnvInt("MAX_ACK_PENDING", 64),
		Concurrency:           getEnvInt("WORKER_CONCURRENCY", 2),
		MonitoringTopic:       getEnv("MONITORING_TOPIC", "monitoring.models.backpressure"),
		BackpressureThreshold: getEnvInt("BACKPRESSURE_THRESHOLD", 10),
		HeartbeatInterval:     getEnvDuration("HEARTBEAT_INTERVAL", "30s"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8000"),
		ModelName:             getEnv("MODEL_NAME", "sleep-quality"),
		ModelPath:             getEnv("MODEL_PATH", "data/models/model.yaml"),
		AuditPath:             getEnv("AUDIT_PATH", "output/results.csv"),
		DBPath:                getEnv("DB_PATH", "data/requests.sqlite"),
		LogPath:               getEnv("LOG_PATH", "logs/running_logs.log"),
		LogLevel:              getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	// Tickers panic on non-positive intervals and zero workers would leave
	// the queue undrained.
	if cfg.HeartbeatInterval <= 0 {
		slog.Warn("HEARTBEAT_INTERVAL must be positive, using default", "value", cfg.HeartbeatInterval)
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Concurrency < 1 {
		slog.Warn("WORKER_CONCURRENCY must be positive, using default", "value", cfg.Concurrency)
		cfg.Concurrency = 2
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(os.Getenv(key)))); err != nil {
		return defaultVal
	}
	return level
}

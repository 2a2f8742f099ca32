package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ChatWritesEnabled bool
	RetentionDays     int
	RetentionCron     string

	// MQTT
	MQTTBrokerURL      string
	MQTTClientID       string
	MQTTTopicPrefix    string
	MQTTPublishTimeout time.Duration

	// Generative backend
	LLMProvider         string
	LLMTimeout          time.Duration
	GeminiAPIKey        string
	GeminiModel         string
	OllamaHost          string
	OllamaModel         string
	OllamaContextLength int

	// Zone id -> control address, loaded from ZonesFile.
	ZonesFile string
	Zones     map[string]string

	// Redis
	RedisAddr      string
	RedisPassword  string
	RateLimitRPS   int
	RateLimitBurst int

	// Kafka
	KafkaBrokers    []string
	KafkaAuditTopic string

	OTLPEndpoint string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("FEEDBACK_SERVICE_PORT", "3001"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		PostgresHost:     getEnv("POSTGRES_HOST", "postgres"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "feedback"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ChatWritesEnabled: getEnvBool("CHAT_WRITES_ENABLED", true),
		RetentionDays:     getEnvInt("CHAT_RETENTION_DAYS", 0),
		RetentionCron:     getEnv("CHAT_RETENTION_CRON", "@daily"),

		MQTTBrokerURL:      getEnv("MQTT_BROKER_URL", "mqtt://mosquitto:1883"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "feedback-service"),
		MQTTTopicPrefix:    getEnv("MQTT_TOPIC_PREFIX", ""),
		MQTTPublishTimeout: getEnvDuration("MQTT_PUBLISH_TIMEOUT", 5*time.Second),

		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 15*time.Second),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaHost:          getEnv("OLLAMA_HOST", "http://ollama:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llama3.1:8b"),
		OllamaContextLength: getEnvInt("OLLAMA_CONTEXT_LENGTH", 4096),

		ZonesFile: getEnv("ZONES_FILE", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RateLimitRPS:   getEnvInt("FEEDBACK_RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvInt("FEEDBACK_RATE_LIMIT_BURST", 5),

		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaAuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "feedback.reconciliations"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	switch cfg.LLMProvider {
	case "gemini", "ollama", "none":
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}

	zones, err := LoadZones(cfg.ZonesFile)
	if err != nil {
		return nil, err
	}
	cfg.Zones = zones

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
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
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

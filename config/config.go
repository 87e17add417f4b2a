package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the collector backend
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Local cache
	CachePath string

	// Auth
	JWTSecret string
	MockAuth  bool

	// Seed dummy requests around Accra when the store is empty
	MockData      bool
	MockDataCount int

	GeofenceRadiusMeters float64
	SyncInterval         time.Duration

	// Accept rate limiting
	RedisAddress  string
	RedisPassword string
	AcceptLimit   int
	AcceptWindow  time.Duration

	// Event publishing
	AMQPURL          string
	RabbitMQExchange string
	KafkaBroker      string
	KafkaTopic       string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret"),
		DBName:     getEnv("DB_NAME", "trashdrop"),

		CachePath: getEnv("CACHE_PATH", "trashdrop-cache.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		MockAuth:  getBoolEnv("MOCK_AUTH", false),

		MockData:      getBoolEnv("MOCK_DATA", false),
		MockDataCount: getIntEnv("MOCK_DATA_COUNT", 10),

		GeofenceRadiusMeters: getFloatEnv("GEOFENCE_RADIUS_METERS", 50.0),
		SyncInterval:         getDurationEnv("SYNC_INTERVAL", 30*time.Second),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		AcceptLimit:   getIntEnv("ACCEPT_LIMIT", 20),
		AcceptWindow:  getDurationEnv("ACCEPT_WINDOW", time.Hour),

		AMQPURL:          getEnv("AMQP_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "trashdrop"),
		KafkaBroker:      getEnv("KAFKA_BROKER", ""),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "collection-requests"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv accepts true/false, 1/0, yes/no and on/off
func getBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return defaultValue
}

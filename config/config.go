package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	LogLevel        string
	MongoURI        string
	MongoDatabase   string
	JWTSecret       string
	DefaultCurrency string
	// RabbitMQURL empty disables event publishing.
	RabbitMQURL     string
	RabbitMQQueue   string
	ChannelPoolSize int
	RequestTimeout  time.Duration
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "ecommerce"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue:   getEnv("RABBITMQ_QUEUE", "cart_events"),
		ChannelPoolSize: getEnvAsInt("CHANNEL_POOL_SIZE", 10),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Storage   StorageConfig
	Queue     QueueConfig
	Ingestion IngestionConfig
	Server    ServerConfig
	LogLevel  string
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type          string // "mongodb", "dynamodb", "postgresql"
	MongoDBURI    string
	MongoDatabase string
	PostgresURI   string
	Region        string // For AWS DynamoDB
	TableName     string
	Endpoint      string // Custom endpoint for local testing
	LogWindow     time.Duration
}

// QueueConfig holds Redis work-queue configuration
type QueueConfig struct {
	Addr     string
	Password string
	DB       int
	Name     string
}

// IngestionConfig holds feed-polling and worker configuration
type IngestionConfig struct {
	FeedURLs     []string
	Timeout      time.Duration
	ScheduleSpec string
	Timezone     string
	WorkerCount  int
	DequeueWait  time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Type:          getEnv("STORAGE_TYPE", "mongodb"),
			MongoDBURI:    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase: getEnv("MONGODB_DATABASE", "job_importer"),
			PostgresURI:   getEnv("POSTGRES_URI", ""),
			Region:        getEnv("AWS_REGION", "us-west-2"),
			TableName:     getEnv("TABLE_NAME", "jobs"),
			Endpoint:      getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			LogWindow:     getEnvDuration("LOG_WINDOW", time.Hour),
		},
		Queue: QueueConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Name:     getEnv("QUEUE_NAME", "job-import-queue"),
		},
		Ingestion: IngestionConfig{
			FeedURLs:     getEnvList("FEED_URLS", defaultFeeds),
			Timeout:      getEnvDuration("FEED_TIMEOUT", 30*time.Second),
			ScheduleSpec: getEnv("SCHEDULE_SPEC", "*/13 * * * *"),
			Timezone:     getEnv("SCHEDULE_TIMEZONE", "Asia/Kolkata"),
			WorkerCount:  getEnvInt("WORKER_COUNT", 1),
			DequeueWait:  getEnvDuration("DEQUEUE_WAIT", 5*time.Second),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

var defaultFeeds = []string{
	"https://jobicy.com/?feed=job_feed",
	"https://jobicy.com/?feed=job_feed&job_categories=smm&job_types=full-time",
	"https://jobicy.com/?feed=job_feed&job_categories=data-science",
	"https://www.higheredjobs.com/rss/articleFeed.cfm",
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var urls []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		return defaultValue
	}
	return urls
}

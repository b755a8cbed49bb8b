package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	CohortRequestTopic string
	CohortEventTopic   string

	// Pipeline
	PipelineFile   string
	OutputDir      string
	TableSource    string
	TablesDir      string
	ICD10CodesFile string
	CacheBackend   string
	CacheDir       string
	CacheKeying    string
	CacheTTL       time.Duration
	MatchPolicy    string
	MatchRatio     int
	MaxWorkers     int
	PersistToDB    bool
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8087"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "registers"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "registers"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "cohort-service"),
		CohortRequestTopic: getEnv("COHORT_REQUEST_TOPIC", "cohort.build"),
		CohortEventTopic:   getEnv("COHORT_EVENT_TOPIC", "cohort.events"),

		PipelineFile:   getEnv("PIPELINE_CONFIG", ""),
		OutputDir:      getEnv("OUTPUT_DIR", "output"),
		TableSource:    getEnv("TABLE_SOURCE", "parquet"),
		TablesDir:      getEnv("TABLES_DIR", "data/tables"),
		ICD10CodesFile: getEnv("ICD10_CODES_FILE", "data/icd10_codes.csv"),
		CacheBackend:   getEnv("CACHE_BACKEND", "file"),
		CacheDir:       getEnv("CACHE_DIR", "cache"),
		CacheKeying:    getEnv("CACHE_KEYING", "stage"),
		CacheTTL:       getDuration("CACHE_TTL", 0),
		MatchPolicy:    getEnv("MATCH_POLICY", "all"),
		MatchRatio:     getIntEnv("MATCH_RATIO", 0),
		MaxWorkers:     getIntEnv("MAX_WORKERS", 1),
		PersistToDB:    getBoolEnv("PERSIST_TO_DB", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

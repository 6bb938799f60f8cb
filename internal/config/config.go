package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"10"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass        string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize    int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	IncidentCacheTTL time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Generative AI Config
	AIBaseURL string        `env:"AI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	AIAPIKey  string        `env:"AI_API_KEY"`
	AIModel   string        `env:"AI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	AITimeout time.Duration `env:"AI_TIMEOUT" envDefault:"15s"`

	// ML artifacts
	SeverityModelPath   string `env:"SEVERITY_MODEL_PATH"`
	AssignmentModelPath string `env:"ASSIGNMENT_MODEL_PATH"`

	// Severity heuristic thresholds
	SeverityCriticalThreshold float64 `env:"SEVERITY_CRITICAL_THRESHOLD" envDefault:"4.5"`
	SeverityHighThreshold     float64 `env:"SEVERITY_HIGH_THRESHOLD" envDefault:"3.2"`
	SeverityMediumThreshold   float64 `env:"SEVERITY_MEDIUM_THRESHOLD" envDefault:"2.2"`
	UrgencyOriginalWeight     float64 `env:"URGENCY_ORIGINAL_WEIGHT" envDefault:"0.6"`
	UrgencyScoreWeight        float64 `env:"URGENCY_SCORE_WEIGHT" envDefault:"0.6"`

	// Assignment scoring
	WeightSeverity  float64 `env:"ASSIGN_WEIGHT_SEVERITY" envDefault:"1.0"`
	WeightDistance  float64 `env:"ASSIGN_WEIGHT_DISTANCE" envDefault:"0.6"`
	WeightLoad      float64 `env:"ASSIGN_WEIGHT_LOAD" envDefault:"0.8"`
	DistanceScaleKm float64 `env:"ASSIGN_DISTANCE_SCALE_KM" envDefault:"50"`
	LoadScale       float64 `env:"ASSIGN_LOAD_SCALE" envDefault:"10"`
	DistanceCapKm   float64 `env:"ASSIGN_DISTANCE_CAP_KM" envDefault:"40"`
	TeamCapacity    int     `env:"ASSIGN_TEAM_CAPACITY" envDefault:"8"`

	// Stale dispatch reaper
	StaleDispatchTTL time.Duration `env:"STALE_DISPATCH_TTL" envDefault:"30m"`

	// Team sessions
	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       getEnvAsInt("DB_MAX_CONNS", 10),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		RedisPoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
		IncidentCacheTTL: getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),

		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:    getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries: getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:  getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),

		AIBaseURL: getEnv("AI_BASE_URL", "https://generativelanguage.googleapis.com"),
		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AIModel:   getEnv("AI_MODEL", "gemini-2.5-flash-lite"),
		AITimeout: getEnvAsDuration("AI_TIMEOUT", 15*time.Second),

		SeverityModelPath:   os.Getenv("SEVERITY_MODEL_PATH"),
		AssignmentModelPath: os.Getenv("ASSIGNMENT_MODEL_PATH"),

		SeverityCriticalThreshold: getEnvAsFloat("SEVERITY_CRITICAL_THRESHOLD", 4.5),
		SeverityHighThreshold:     getEnvAsFloat("SEVERITY_HIGH_THRESHOLD", 3.2),
		SeverityMediumThreshold:   getEnvAsFloat("SEVERITY_MEDIUM_THRESHOLD", 2.2),
		UrgencyOriginalWeight:     getEnvAsFloat("URGENCY_ORIGINAL_WEIGHT", 0.6),
		UrgencyScoreWeight:        getEnvAsFloat("URGENCY_SCORE_WEIGHT", 0.6),

		WeightSeverity:  getEnvAsFloat("ASSIGN_WEIGHT_SEVERITY", 1.0),
		WeightDistance:  getEnvAsFloat("ASSIGN_WEIGHT_DISTANCE", 0.6),
		WeightLoad:      getEnvAsFloat("ASSIGN_WEIGHT_LOAD", 0.8),
		DistanceScaleKm: getEnvAsFloat("ASSIGN_DISTANCE_SCALE_KM", 50),
		LoadScale:       getEnvAsFloat("ASSIGN_LOAD_SCALE", 10),
		DistanceCapKm:   getEnvAsFloat("ASSIGN_DISTANCE_CAP_KM", 40),
		TeamCapacity:    getEnvAsInt("ASSIGN_TEAM_CAPACITY", 8),

		StaleDispatchTTL: getEnvAsDuration("STALE_DISPATCH_TTL", 30*time.Minute),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: getEnvAsDuration("SESSION_TTL", 12*time.Hour),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.DistanceScaleKm <= 0 || cfg.LoadScale <= 0 {
		return nil, fmt.Errorf("ASSIGN_DISTANCE_SCALE_KM and ASSIGN_LOAD_SCALE must be positive")
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat возвращает значение переменной окружения как float64 или значение по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

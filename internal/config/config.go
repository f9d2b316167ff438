package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	LogLevel   string

	// DatabaseURL empty means run on the in-memory store.
	DatabaseURL string
	// RedisURL empty means keep presence/typing in process memory.
	RedisURL string

	// Binary storage. Driver is one of file, s3, mem.
	StorageDriver  string
	StorageBucket  string
	StorageRegion  string
	StorageBaseDir string

	JWTSecret string

	// Per-caller request rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() *Config {
	_ = godotenv.Load(".env")

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		StorageDriver:  getEnv("STORAGE_DRIVER", "file"),
		StorageBucket:  getEnv("STORAGE_BUCKET", ""),
		StorageRegion:  getEnv("STORAGE_REGION", ""),
		StorageBaseDir: getEnv("STORAGE_BASE_DIR", "./data/media"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 25),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 50),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

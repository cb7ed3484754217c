package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string
	JWTSecret  string

	// client side
	ServerURL      string
	TypingDebounce time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", "127.0.0.1:3000"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret"),
		ServerURL:      getEnv("SERVER_URL", "http://127.0.0.1:3000"),
		TypingDebounce: getDuration("TYPING_DEBOUNCE_MS", 1500) * time.Millisecond,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultMs int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms)
		}
	}
	return time.Duration(defaultMs)
}

// Package config provides application configuration loading from
// environment variables. The result is an immutable value threaded
// through the components that need it; nothing reads the environment
// after startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	GitHubAPIURL  string
	GitHubToken   string
	RedisAddr     string
	StatsdAddr    string
	BotLogins     []string
	IntegrationID int64
}

// Load reads configuration from environment variables, with a .env file
// as fallback. Returns an error if required variables are not set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	integrationID, err := getRequiredInt64("MERGIFY_INTEGRATION_ID")
	if err != nil {
		return nil, err
	}

	token, err := getRequiredEnv("MERGIFY_GITHUB_TOKEN")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		IntegrationID: integrationID,
		GitHubToken:   token,
		GitHubAPIURL:  getEnv("MERGIFY_GITHUB_API_URL", "https://api.github.com"),
		RedisAddr:     getEnv("MERGIFY_REDIS_ADDR", "localhost:6379"),
		StatsdAddr:    os.Getenv("MERGIFY_STATSD_ADDR"),
		BotLogins:     splitList(getEnv("MERGIFY_BOT_LOGINS", "mergify[bot],mergify-test[bot]")),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return value, nil
}

func getRequiredInt64(key string) (int64, error) {
	value, err := getRequiredEnv(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

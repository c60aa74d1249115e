package config

import (
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("MERGIFY_INTEGRATION_ID", "10924")
		t.Setenv("MERGIFY_GITHUB_TOKEN", "ghs_test")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.IntegrationID != 10924 {
			t.Errorf("IntegrationID = %d", cfg.IntegrationID)
		}
		if cfg.GitHubAPIURL != "https://api.github.com" {
			t.Errorf("GitHubAPIURL = %q", cfg.GitHubAPIURL)
		}
		if cfg.RedisAddr != "localhost:6379" {
			t.Errorf("RedisAddr = %q", cfg.RedisAddr)
		}
		if len(cfg.BotLogins) != 2 || cfg.BotLogins[0] != "mergify[bot]" {
			t.Errorf("BotLogins = %v", cfg.BotLogins)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("MERGIFY_INTEGRATION_ID", "1")
		t.Setenv("MERGIFY_GITHUB_TOKEN", "ghs_test")
		t.Setenv("MERGIFY_GITHUB_API_URL", "https://ghe.example.com/api/v3")
		t.Setenv("MERGIFY_BOT_LOGINS", "my-bot[bot], other-bot[bot]")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.GitHubAPIURL != "https://ghe.example.com/api/v3" {
			t.Errorf("GitHubAPIURL = %q", cfg.GitHubAPIURL)
		}
		if len(cfg.BotLogins) != 2 || cfg.BotLogins[1] != "other-bot[bot]" {
			t.Errorf("BotLogins = %v, whitespace should be trimmed", cfg.BotLogins)
		}
	})

	t.Run("missing integration id", func(t *testing.T) {
		t.Setenv("MERGIFY_INTEGRATION_ID", "")
		t.Setenv("MERGIFY_GITHUB_TOKEN", "ghs_test")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "MERGIFY_INTEGRATION_ID") {
			t.Fatalf("err = %v, want a message naming the missing variable", err)
		}
	})

	t.Run("non-numeric integration id", func(t *testing.T) {
		t.Setenv("MERGIFY_INTEGRATION_ID", "not-a-number")
		t.Setenv("MERGIFY_GITHUB_TOKEN", "ghs_test")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "integer") {
			t.Fatalf("err = %v, want an integer parse error", err)
		}
	})
}

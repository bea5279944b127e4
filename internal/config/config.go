// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken     string
	GitHubUsername  string
	AnthropicAPIKey string
	TargetOrg       string
	ListenAddr      string
	DBPath          string
	RepoCacheDir    string
	CutoffDate      time.Time
	PollInterval    time.Duration
	CloneLimit      int
}

// HasGitHubCredentials returns true when both GitHubToken and GitHubUsername
// are non-empty. Used by the composition root to decide whether to create a
// real GitHub client at startup or run with queue execution disabled.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && c.GitHubUsername != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// GitHub credentials (PROSPECTOR_GITHUB_TOKEN, PROSPECTOR_GITHUB_USERNAME) and
// PROSPECTOR_ANTHROPIC_API_KEY are optional; without them the server starts but
// the features needing them report not configured.
// Optional variables with defaults: PROSPECTOR_LISTEN_ADDR (127.0.0.1:8080),
// PROSPECTOR_DB_PATH (prospector.db), PROSPECTOR_REPO_CACHE_DIR (~/.prospector/repos),
// PROSPECTOR_CUTOFF_DATE (2024-05-01), PROSPECTOR_QUEUE_POLL_INTERVAL (30s),
// PROSPECTOR_CLONE_CONCURRENCY (3).
func Load() (*Config, error) {
	token := os.Getenv("PROSPECTOR_GITHUB_TOKEN")
	username := os.Getenv("PROSPECTOR_GITHUB_USERNAME")
	anthropicKey := os.Getenv("PROSPECTOR_ANTHROPIC_API_KEY")
	targetOrg := os.Getenv("PROSPECTOR_TARGET_ORG")

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("PROSPECTOR_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "prospector.db"
	if v, ok := os.LookupEnv("PROSPECTOR_DB_PATH"); ok {
		dbPath = v
	}

	cacheDir := ""
	if v, ok := os.LookupEnv("PROSPECTOR_REPO_CACHE_DIR"); ok {
		cacheDir = v
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for repo cache: %w", err)
		}
		cacheDir = home + "/.prospector/repos"
	}

	cutoff := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	if v, ok := os.LookupEnv("PROSPECTOR_CUTOFF_DATE"); ok {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("PROSPECTOR_CUTOFF_DATE must be YYYY-MM-DD, got %q: %w", v, err)
		}
		cutoff = parsed
	}

	pollInterval := 30 * time.Second
	if v, ok := os.LookupEnv("PROSPECTOR_QUEUE_POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("PROSPECTOR_QUEUE_POLL_INTERVAL has invalid duration %q: %w", v, err)
		}
		pollInterval = parsed
	}

	cloneLimit := 3
	if v, ok := os.LookupEnv("PROSPECTOR_CLONE_CONCURRENCY"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("PROSPECTOR_CLONE_CONCURRENCY must be a positive integer, got %q", v)
		}
		cloneLimit = parsed
	}

	return &Config{
		GitHubToken:     token,
		GitHubUsername:  username,
		AnthropicAPIKey: anthropicKey,
		TargetOrg:       targetOrg,
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		RepoCacheDir:    cacheDir,
		CutoffDate:      cutoff,
		PollInterval:    pollInterval,
		CloneLimit:      cloneLimit,
	}, nil
}

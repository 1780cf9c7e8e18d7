package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RuntimeConfig captures the environment-driven settings for lendingd. The
// market definition itself (reserves, categories, treasury) lives in the TOML
// file referenced by ConfigPath.
type RuntimeConfig struct {
	ConfigPath      string
	Listen          string
	Environment     string
	DataDir         string
	AdminToken      string
	RateLimitPerMin int
	InMemory        bool
}

const (
	envConfigPath      = "LENDPOOL_CONFIG"
	envListen          = "LENDPOOL_LISTEN"
	envEnvironment     = "LENDPOOL_ENV"
	envDataDir         = "LENDPOOL_DATA_DIR"
	envAdminToken      = "LENDPOOL_ADMIN_TOKEN"
	envRateLimitPerMin = "LENDPOOL_RATE_PER_MIN"
	envInMemory        = "LENDPOOL_IN_MEMORY"

	defaultConfigPath      = "lendpool.toml"
	defaultRateLimitPerMin = 120
)

// LoadRuntimeFromEnv constructs a RuntimeConfig using environment variables
// and defaults. Listen and DataDir fall back to the TOML configuration when
// left empty.
func LoadRuntimeFromEnv() RuntimeConfig {
	return RuntimeConfig{
		ConfigPath:      stringFromEnv(envConfigPath, defaultConfigPath),
		Listen:          strings.TrimSpace(os.Getenv(envListen)),
		Environment:     strings.TrimSpace(os.Getenv(envEnvironment)),
		DataDir:         strings.TrimSpace(os.Getenv(envDataDir)),
		AdminToken:      strings.TrimSpace(os.Getenv(envAdminToken)),
		RateLimitPerMin: intFromEnv(envRateLimitPerMin, defaultRateLimitPerMin),
		InMemory:        boolFromEnv(envInMemory, false),
	}
}

// Sanitized returns a copy of the configuration with secrets masked for
// logging.
func (cfg RuntimeConfig) Sanitized() RuntimeConfig {
	clone := cfg
	if clone.AdminToken != "" {
		clone.AdminToken = "***"
	}
	return clone
}

// Validate ensures the runtime configuration is internally consistent.
func (cfg RuntimeConfig) Validate() error {
	if strings.TrimSpace(cfg.ConfigPath) == "" {
		return fmt.Errorf("config path required")
	}
	if cfg.RateLimitPerMin < 0 {
		return fmt.Errorf("rate limit per minute must be non-negative")
	}
	return nil
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func intFromEnv(key string, fallback int) int {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

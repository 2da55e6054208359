// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// minSecretLength is the shortest session secret accepted in production.
	minSecretLength = 32
)

type Config struct {
	// HTTP Server
	Port        string
	Environment string

	// Database
	DBPath string

	// Sessions
	SessionSecret          string
	SessionCleanupSchedule string

	// Bootstrap account, created when the user table is empty
	AdminUser     string
	AdminPassword string
}

// Load reads the configuration. A .env file in the working directory is
// applied first when present; variables already set take precedence.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "4000"),
		Environment: getEnv("APP_ENV", EnvDevelopment),

		DBPath: getEnv("DB_PATH", "txledger.db"),

		SessionSecret:          os.Getenv("SESSION_SECRET"),
		SessionCleanupSchedule: getEnv("SESSION_CLEANUP_SCHEDULE", "@hourly"),

		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errors = append(errors, fmt.Sprintf("invalid environment '%s': must be one of [%s %s]", c.Environment, EnvDevelopment, EnvProduction))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	}

	if c.IsProduction() {
		if c.SessionSecret == "" {
			errors = append(errors, "SESSION_SECRET is required in production")
		} else if len(c.SessionSecret) < minSecretLength {
			errors = append(errors, fmt.Sprintf("session secret too short: must be at least %d characters", minSecretLength))
		}
	}

	if _, err := cron.ParseStandard(c.SessionCleanupSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid session cleanup schedule '%s': %v", c.SessionCleanupSchedule, err))
	}

	if (c.AdminUser == "") != (c.AdminPassword == "") {
		errors = append(errors, "ADMIN_USER and ADMIN_PASSWORD must be set together")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Secret returns the key used to sign session cookies. Outside production a
// fixed development key is used when none is configured.
func (c *Config) Secret() string {
	if c.SessionSecret == "" {
		return "txledger-development-session-secret"
	}
	return c.SessionSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

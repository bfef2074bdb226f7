package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for tablemesh-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Path to the metadata snapshot consumed at startup
	MetadataPath string `yaml:"metadata_path" env:"METADATA_PATH" env-default:"metadata.yaml"`

	// Learner configuration (interactive join learning)
	Learner LearnerConfig `yaml:"learner"`

	// Database configuration (PostgreSQL, learned-join persistence)
	Database DatabaseConfig `yaml:"database"`
}

// LearnerConfig holds interactive-learning settings.
type LearnerConfig struct {
	// Enabled controls whether unresolvable joins escalate to a question.
	Enabled bool `yaml:"enabled" env:"LEARNER_ENABLED" env-default:"true"`

	// AskTimeoutSeconds bounds how long one join question may block.
	AskTimeoutSeconds int `yaml:"ask_timeout_seconds" env:"LEARNER_ASK_TIMEOUT_SECONDS" env-default:"30"`

	// Persist controls whether learned joins are written to the database.
	Persist bool `yaml:"persist" env:"LEARNER_PERSIST" env-default:"false"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"tablemesh"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"tablemesh_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Load reads configuration from the given YAML file with environment variable
// overrides. A missing file is not an error; environment variables and
// defaults then carry the whole configuration. The version parameter is
// injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

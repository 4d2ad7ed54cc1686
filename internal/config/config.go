// ABOUTME: Configuration loading and parsing for hive-fleet
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hive-fleet configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Providers ProvidersConfig `yaml:"providers"`
	Memory    MemoryConfig    `yaml:"memory"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds record store configuration.
// Driver selects the backend: "sqlite" (default) or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file path
	DSN    string `yaml:"dsn"`  // postgres connection string
}

// FleetConfig holds pool and scheduler timing configuration
type FleetConfig struct {
	PollInterval     time.Duration `yaml:"-"`
	ShutdownTimeout  time.Duration `yaml:"-"`
	MaxBots          int           `yaml:"max_bots"`
	MaxMessageLength int           `yaml:"max_message_length"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw    string `yaml:"poll_interval"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// ProvidersConfig holds API keys for LLM backends
type ProvidersConfig struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// MemoryConfig holds conversation memory configuration.
// Backend "memory" keeps history in process (lost on restart);
// "redis" keeps it in Redis so it survives credential rotations.
type MemoryConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are absent from the YAML file.
const (
	DefaultPollInterval     = 10 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMaxBots          = 50
	DefaultMaxMessageLength = 2000
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Fleet.PollInterval == 0 {
		cfg.Fleet.PollInterval = DefaultPollInterval
	}
	if cfg.Fleet.ShutdownTimeout == 0 {
		cfg.Fleet.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Fleet.MaxBots == 0 {
		cfg.Fleet.MaxBots = DefaultMaxBots
	}
	if cfg.Fleet.MaxMessageLength == 0 {
		cfg.Fleet.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if c.Fleet.PollInterval < time.Second || c.Fleet.PollInterval > 300*time.Second {
		return fmt.Errorf("fleet.poll_interval must be between 1s and 300s, got %s", c.Fleet.PollInterval)
	}
	if c.Fleet.MaxBots < 1 {
		return fmt.Errorf("fleet.max_bots must be at least 1, got %d", c.Fleet.MaxBots)
	}
	if c.Fleet.MaxMessageLength < 1 {
		return fmt.Errorf("fleet.max_message_length must be positive, got %d", c.Fleet.MaxMessageLength)
	}

	switch c.Memory.Backend {
	case "memory":
	case "redis":
		if c.Memory.RedisURL == "" {
			return fmt.Errorf("memory.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("memory.backend must be memory or redis, got %q", c.Memory.Backend)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Fleet.PollIntervalRaw != "" {
		cfg.Fleet.PollInterval, err = time.ParseDuration(cfg.Fleet.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Fleet.PollIntervalRaw, err)
		}
	}

	if cfg.Fleet.ShutdownTimeoutRaw != "" {
		cfg.Fleet.ShutdownTimeout, err = time.ParseDuration(cfg.Fleet.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Fleet.ShutdownTimeoutRaw, err)
		}
	}

	return nil
}

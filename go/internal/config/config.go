package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values are layered: defaults, then the
// YAML file, then .env, then the process environment. Command-line flags are
// applied on top by the caller.
type Config struct {
	Port            string        `yaml:"port"`
	LongPollTimeout time.Duration `yaml:"longpoll_timeout"`
	ReaperInterval  time.Duration `yaml:"reaper_interval"`
	GroupRetention  time.Duration `yaml:"group_retention"`

	NATS NATSConfig `yaml:"nats"`
	Log  LogConfig  `yaml:"log"`
	CORS CORSConfig `yaml:"cors"`
}

// NATSConfig enables change events when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:            "8080",
		LongPollTimeout: 55 * time.Second,
		ReaperInterval:  time.Hour,
		GroupRetention:  24 * time.Hour,
		NATS: NATSConfig{
			SubjectPrefix: "raidtimer.groups",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. path may be empty. A missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}

	var err error
	if c.LongPollTimeout, err = getEnvAsDuration("LONGPOLL_TIMEOUT", c.LongPollTimeout); err != nil {
		return err
	}
	if c.ReaperInterval, err = getEnvAsDuration("REAPER_INTERVAL", c.ReaperInterval); err != nil {
		return err
	}
	if c.GroupRetention, err = getEnvAsDuration("GROUP_RETENTION", c.GroupRetention); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.LongPollTimeout <= 0 {
		return fmt.Errorf("longpoll timeout must be positive, got %s", c.LongPollTimeout)
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %s", c.ReaperInterval)
	}
	if c.GroupRetention <= 0 {
		return fmt.Errorf("group retention must be positive, got %s", c.GroupRetention)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the startup settings of the table gateway.
type Config struct {
	Port             string        `yaml:"port"`
	TableCount       int           `yaml:"table_count"`
	TableDuration    time.Duration `yaml:"table_duration"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	AnchorRefresh    time.Duration `yaml:"anchor_refresh"`
	ReportRejections bool          `yaml:"report_rejections"`
	StaticDir        string        `yaml:"static_dir"`
	NATSURL          string        `yaml:"nats_url"`
	NATSSubject      string        `yaml:"nats_subject"`
	LogLevel         string        `yaml:"log_level"`
}

// Default returns the settings the venue runs with out of the box.
func Default() Config {
	return Config{
		Port:          "3000",
		TableCount:    3,
		TableDuration: 5 * time.Minute,
		TickInterval:  250 * time.Millisecond,
		AnchorRefresh: time.Second,
		NATSSubject:   "tables.state",
		LogLevel:      "info",
	}
}

// Load reads .env (if present), then the YAML file named by TABLES_CONFIG
// (if set), then individual environment variables. Later sources win.
func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TABLES_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the core cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.TableCount <= 0 {
		errs = append(errs, fmt.Errorf("table_count must be positive, got %d", c.TableCount))
	}
	if c.TableDuration < time.Second {
		errs = append(errs, fmt.Errorf("table_duration must be at least 1s, got %s", c.TableDuration))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.AnchorRefresh <= 0 {
		errs = append(errs, fmt.Errorf("anchor_refresh must be positive, got %s", c.AnchorRefresh))
	}
	return errors.Join(errs...)
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.TableCount = getEnvAsInt("TABLE_COUNT", c.TableCount)
	c.TableDuration = getEnvAsDuration("TABLE_DURATION_SEC", time.Second, c.TableDuration)
	c.TickInterval = getEnvAsDuration("TICK_INTERVAL_MS", time.Millisecond, c.TickInterval)
	c.AnchorRefresh = getEnvAsDuration("ANCHOR_REFRESH_MS", time.Millisecond, c.AnchorRefresh)
	c.ReportRejections = getEnvAsBool("REPORT_REJECTIONS", c.ReportRejections)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubject = getEnv("NATS_SUBJECT", c.NATSSubject)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration reads an integer count of unit. Unset or unparsable
// values leave defaultValue untouched, including its sub-unit precision.
func getEnvAsDuration(key string, unit, defaultValue time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(n) * unit
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

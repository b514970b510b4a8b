// Package config loads the app configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/st-keller/indy-led-app/update"
)

// Config holds the app configuration.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Loop   LoopConfig   `yaml:"loop"`
	Log    LogConfig    `yaml:"log"`
	Status StatusConfig `yaml:"status"`
}

// AppConfig describes the app itself.
type AppConfig struct {
	Name            string          `yaml:"name"`
	Version         string          `yaml:"version"`
	Heartbeat       update.Interval `yaml:"heartbeat"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

// LoopConfig configures the idle loop.
type LoopConfig struct {
	Delay       time.Duration `yaml:"delay"`
	StatusPrint bool          `yaml:"status_print"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Recent int    `yaml:"recent"`
}

// StatusConfig configures the local status server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

const (
	defaultName            = "indy-sim-led-display"
	defaultVersion         = "dev"
	defaultHeartbeat       = update.Slow
	defaultShutdownTimeout = 5 * time.Second
	defaultLoopDelay       = time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultRecentLogs      = 100
	defaultStatusAddr      = "127.0.0.1:8089"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		App: AppConfig{
			Name:            defaultName,
			Version:         defaultVersion,
			Heartbeat:       defaultHeartbeat,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Loop: LoopConfig{
			Delay: defaultLoopDelay,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Recent: defaultRecentLogs,
		},
		Status: StatusConfig{
			Addr: defaultStatusAddr,
		},
	}
}

// Load reads defaults, then path (if not empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values and reports every problem found.
func (c Config) Validate() error {
	var err error
	if c.App.Name == "" {
		err = multierr.Append(err, errors.New("app.name required"))
	}
	if !c.App.Heartbeat.Valid() {
		err = multierr.Append(err, fmt.Errorf("app.heartbeat invalid: %s", c.App.Heartbeat))
	}
	if c.App.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("app.shutdown_timeout must be > 0"))
	}
	if c.Loop.Delay <= 0 {
		err = multierr.Append(err, errors.New("loop.delay must be > 0"))
	}
	if c.Log.Recent < 0 {
		err = multierr.Append(err, errors.New("log.recent must be >= 0"))
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		err = multierr.Append(err, errors.New("status.addr required when status.enabled"))
	}
	return err
}

func applyEnv(cfg *Config) error {
	cfg.App.Name = getEnv("LED_APP_NAME", cfg.App.Name)
	cfg.Log.Level = getEnv("LED_APP_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LED_APP_LOG_FORMAT", cfg.Log.Format)
	cfg.Status.Addr = getEnv("LED_APP_STATUS_ADDR", cfg.Status.Addr)

	var err error
	if cfg.Loop.Delay, err = getDuration("LED_APP_LOOP_DELAY", cfg.Loop.Delay); err != nil {
		return err
	}
	if cfg.Loop.StatusPrint, err = getBool("LED_APP_STATUS_PRINT", cfg.Loop.StatusPrint); err != nil {
		return err
	}
	if cfg.Status.Enabled, err = getBool("LED_APP_STATUS_ENABLED", cfg.Status.Enabled); err != nil {
		return err
	}
	if v := os.Getenv("LED_APP_HEARTBEAT"); v != "" {
		hb, err := update.Parse(v)
		if err != nil {
			return fmt.Errorf("LED_APP_HEARTBEAT: %w", err)
		}
		cfg.App.Heartbeat = hb
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

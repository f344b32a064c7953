package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Config represents the complete stagechain configuration
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Countdown CountdownConfig `mapstructure:"countdown"`
	Gate      GateConfig      `mapstructure:"gate"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// PipelineConfig controls the three-stage chain
type PipelineConfig struct {
	// InputID is the token passed to every stage (default: "001")
	InputID string `mapstructure:"input_id"`
	// PollIntervalMs is how often a closed gate is re-evaluated
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// StageDurationMs is how long each simulated stage works
	StageDurationMs int `mapstructure:"stage_duration_ms"`
}

// CountdownConfig controls the countdowns started after the chain stages
type CountdownConfig struct {
	// IntervalMs is the duration of one tick (default: 1000)
	IntervalMs int `mapstructure:"interval_ms"`
	// AfterSecond is the countdown started when the second stage succeeds
	AfterSecond CountdownRunConfig `mapstructure:"after_second"`
	// AfterThird is the countdown started when the third stage succeeds
	AfterThird CountdownRunConfig `mapstructure:"after_third"`
}

// CountdownRunConfig describes one countdown run
type CountdownRunConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	TerminalID string `mapstructure:"terminal_id"`
	Ticks      int    `mapstructure:"ticks"`
	Title      string `mapstructure:"title"`
	Text       string `mapstructure:"text"`
}

// GateConfig selects the precondition every stage waits for
type GateConfig struct {
	// Kind is one of "always", "tcp", "redis"
	Kind string `mapstructure:"kind"`
	// Address is the host:port dialed by the tcp gate
	Address string `mapstructure:"address"`
	// TimeoutMs bounds a single reachability probe
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// RedisConfig configures the Redis status notifier and the redis gate
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level"`
	// Dir is where stagechain.log is written; empty means stderr
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls the metrics/health HTTP endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the configuration matching the demo pipeline.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			InputID:         "001",
			PollIntervalMs:  1000,
			StageDurationMs: 3000,
		},
		Countdown: CountdownConfig{
			IntervalMs: 1000,
			AfterSecond: CountdownRunConfig{
				Enabled:    true,
				TerminalID: "001",
				Ticks:      10,
				Title:      "Second worker process is done",
				Text:       "Check it out!",
			},
			AfterThird: CountdownRunConfig{
				Enabled:    true,
				TerminalID: "002",
				Ticks:      5,
				Title:      "Third worker process is done",
				Text:       "Final countdown starting!",
			},
		},
		Gate: GateConfig{
			Kind:      GateAlways,
			Address:   "1.1.1.1:53",
			TimeoutMs: 1000,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Prefix:  "stagechain:",
		},
		Logging: LoggingConfig{
			Level: logging.LevelInfo,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":2112",
		},
	}
}

const (
	GateAlways = "always"
	GateTCP    = "tcp"
	GateRedis  = "redis"
)

// ValidGateKinds returns the list of valid gate kinds
func ValidGateKinds() []string {
	return []string{GateAlways, GateTCP, GateRedis}
}

// PollInterval returns the gate poll interval as a duration
func (c *PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// StageDuration returns the simulated stage duration
func (c *PipelineConfig) StageDuration() time.Duration {
	return time.Duration(c.StageDurationMs) * time.Millisecond
}

// Interval returns the countdown tick interval
func (c *CountdownConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Timeout returns the reachability probe timeout
func (c *GateConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SetDefaults registers every default with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("pipeline.input_id", defaults.Pipeline.InputID)
	viper.SetDefault("pipeline.poll_interval_ms", defaults.Pipeline.PollIntervalMs)
	viper.SetDefault("pipeline.stage_duration_ms", defaults.Pipeline.StageDurationMs)

	viper.SetDefault("countdown.interval_ms", defaults.Countdown.IntervalMs)
	setRunDefaults("countdown.after_second", defaults.Countdown.AfterSecond)
	setRunDefaults("countdown.after_third", defaults.Countdown.AfterThird)

	viper.SetDefault("gate.kind", defaults.Gate.Kind)
	viper.SetDefault("gate.address", defaults.Gate.Address)
	viper.SetDefault("gate.timeout_ms", defaults.Gate.TimeoutMs)

	viper.SetDefault("redis.enabled", defaults.Redis.Enabled)
	viper.SetDefault("redis.addr", defaults.Redis.Addr)
	viper.SetDefault("redis.password", defaults.Redis.Password)
	viper.SetDefault("redis.db", defaults.Redis.DB)
	viper.SetDefault("redis.prefix", defaults.Redis.Prefix)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

func setRunDefaults(prefix string, run CountdownRunConfig) {
	viper.SetDefault(prefix+".enabled", run.Enabled)
	viper.SetDefault(prefix+".terminal_id", run.TerminalID)
	viper.SetDefault(prefix+".ticks", run.Ticks)
	viper.SetDefault(prefix+".title", run.Title)
	viper.SetDefault(prefix+".text", run.Text)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []error {
	var errs []error

	if c.Pipeline.InputID == "" {
		errs = append(errs, fmt.Errorf("pipeline.input_id must not be empty"))
	}
	if c.Pipeline.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.poll_interval_ms must be positive, got %d", c.Pipeline.PollIntervalMs))
	}
	if c.Pipeline.StageDurationMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.stage_duration_ms must not be negative, got %d", c.Pipeline.StageDurationMs))
	}
	if c.Countdown.IntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("countdown.interval_ms must be positive, got %d", c.Countdown.IntervalMs))
	}
	errs = append(errs, c.Countdown.AfterSecond.validate("countdown.after_second")...)
	errs = append(errs, c.Countdown.AfterThird.validate("countdown.after_third")...)
	if c.Countdown.AfterSecond.Enabled && c.Countdown.AfterThird.Enabled &&
		c.Countdown.AfterSecond.TerminalID != "" &&
		c.Countdown.AfterSecond.TerminalID == c.Countdown.AfterThird.TerminalID {
		errs = append(errs, fmt.Errorf("countdown.after_second and countdown.after_third share terminal_id %q", c.Countdown.AfterThird.TerminalID))
	}

	if !isOneOf(c.Gate.Kind, ValidGateKinds()) {
		errs = append(errs, fmt.Errorf("gate.kind %q is not one of %s", c.Gate.Kind, strings.Join(ValidGateKinds(), ", ")))
	}
	if c.Gate.Kind == GateTCP && c.Gate.Address == "" {
		errs = append(errs, fmt.Errorf("gate.address is required for the tcp gate"))
	}
	if c.Gate.Kind == GateRedis && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("redis.addr is required for the redis gate"))
	}
	if c.Gate.TimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("gate.timeout_ms must be positive, got %d", c.Gate.TimeoutMs))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("redis.addr is required when redis is enabled"))
	}
	if !isOneOf(strings.ToUpper(c.Logging.Level), logging.ValidLevels()) {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of %s", c.Logging.Level, strings.Join(logging.ValidLevels(), ", ")))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	return errs
}

func (r CountdownRunConfig) validate(prefix string) []error {
	if !r.Enabled {
		return nil
	}
	var errs []error
	if r.TerminalID == "" {
		errs = append(errs, fmt.Errorf("%s.terminal_id must not be empty", prefix))
	}
	if r.Ticks < 0 {
		errs = append(errs, fmt.Errorf("%s.ticks must not be negative, got %d", prefix, r.Ticks))
	}
	return errs
}

// ValidationErrors joins every validation problem into one error.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

func isOneOf(v string, valid []string) bool {
	for _, candidate := range valid {
		if v == candidate {
			return true
		}
	}
	return false
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stagechain")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stagechain"
	}
	return filepath.Join(home, ".config", "stagechain")
}

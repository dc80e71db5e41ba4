// Package config loads pawnbridge settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/pawnbridge/internal/bridge"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvListenAddr  = "PAWNBRIDGE_LISTEN_ADDR"
	EnvPort        = "PAWNBRIDGE_PORT"
	EnvMetricsAddr = "PAWNBRIDGE_METRICS_ADDR"
	EnvJournalDir  = "PAWNBRIDGE_JOURNAL_DIR"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogFormat   = "LOG_FORMAT"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxConnections int           `yaml:"max_connections"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	OutboxLimit    int           `yaml:"outbox_limit"`

	ObserveInterval int           `yaml:"observe_interval"`
	RosterInterval  int           `yaml:"roster_interval"`
	TickInterval    time.Duration `yaml:"tick_interval"`

	RestartBackoffInitial time.Duration `yaml:"restart_backoff_initial"`
	RestartBackoffMax     time.Duration `yaml:"restart_backoff_max"`

	JournalDir   string `yaml:"journal_dir"`
	JournalQueue int    `yaml:"journal_queue"`

	World WorldConfig `yaml:"world"`
	Log   LogConfig   `yaml:"log"`
}

// WorldConfig sizes the reference world.
type WorldConfig struct {
	Pawns int   `yaml:"pawns"`
	Seed  int64 `yaml:"seed"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:            bridge.DefaultAddr,
		MetricsAddr:           ":9090",
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		ObserveInterval:       60,
		RosterInterval:        1,
		TickInterval:          16 * time.Millisecond,
		RestartBackoffInitial: 100 * time.Millisecond,
		RestartBackoffMax:     10 * time.Second,
		JournalQueue:          1024,
		World:                 WorldConfig{Pawns: 3, Seed: 1},
		Log:                   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables looked up through getenv. Passing
// nil uses os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		host, _, err := net.SplitHostPort(c.ListenAddr)
		if err != nil {
			host = ""
		}
		c.ListenAddr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if v, ok := lookup(getenv, EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup(getenv, EnvJournalDir); ok {
		c.JournalDir = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	return nil
}

// lookup treats the literal value "-" as an explicit empty setting, so an
// address can be disabled from the environment.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := getenv(key)
	switch v {
	case "":
		return "", false
	case "-":
		return "", true
	default:
		return v, true
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, port, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr %q: %w", c.ListenAddr, err))
	} else if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("listen_addr %q: invalid port", c.ListenAddr))
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics_addr %q: %w", c.MetricsAddr, err))
		}
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, errors.New("max_connections must not be negative"))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate_limit and rate_burst must not be negative"))
	}
	if c.OutboxLimit < 0 {
		errs = append(errs, errors.New("outbox_limit must not be negative"))
	}
	if c.ObserveInterval < 1 {
		errs = append(errs, errors.New("observe_interval must be at least 1"))
	}
	if c.RosterInterval < 1 {
		errs = append(errs, errors.New("roster_interval must be at least 1"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.RestartBackoffInitial <= 0 || c.RestartBackoffMax < c.RestartBackoffInitial {
		errs = append(errs, errors.New("restart backoff must satisfy 0 < initial <= max"))
	}
	if c.World.Pawns < 0 {
		errs = append(errs, errors.New("world.pawns must not be negative"))
	}
	return errors.Join(errs...)
}

// Bridge converts the settings the bridge consumes.
func (c Config) Bridge() bridge.Config {
	return bridge.Config{
		ListenAddr:            c.ListenAddr,
		ReadTimeout:           c.ReadTimeout,
		WriteTimeout:          c.WriteTimeout,
		MaxConnections:        c.MaxConnections,
		RateLimit:             c.RateLimit,
		RateBurst:             c.RateBurst,
		OutboxLimit:           c.OutboxLimit,
		RosterInterval:        c.RosterInterval,
		RestartBackoffInitial: c.RestartBackoffInitial,
		RestartBackoffMax:     c.RestartBackoffMax,
	}
}

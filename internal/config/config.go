package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Targets lists SES sg devices; empty means scan sysfs.
	Targets   []string  `yaml:"targets"`
	Discovery Discovery `yaml:"discovery"`
	LED       LED       `yaml:"led"`
	Exporter  Exporter  `yaml:"exporter"`
	Logging   Logging   `yaml:"logging"`
	Audit     Audit     `yaml:"audit"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

type Discovery struct {
	Concurrency    int           `yaml:"concurrency"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type LED struct {
	ConfirmRetries *int          `yaml:"confirm_retries"`
	ConfirmDelay   time.Duration `yaml:"confirm_delay"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	LocateDuration time.Duration `yaml:"locate_duration"`
}

type Exporter struct {
	Listen        string        `yaml:"listen"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`
}

type Logging struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

type Audit struct {
	// DBPath enables the LED audit log when set.
	DBPath string `yaml:"db_path,omitempty"`
}

var defaultRetries = 1

// defaultConfig provides baseline settings; targets are discovered dynamically
var defaultConfig = Config{
	Discovery: Discovery{
		Concurrency:    4,
		CommandTimeout: 10 * time.Second,
	},
	LED: LED{
		ConfirmRetries: &defaultRetries,
		ConfirmDelay:   500 * time.Millisecond,
		ConfirmTimeout: 5 * time.Second,
		LocateDuration: 30 * time.Second,
	},
	Exporter: Exporter{
		Listen:        "0.0.0.0:9945",
		ScrapeTimeout: 20 * time.Second,
	},
	Logging: Logging{
		Level: "info",
	},
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	retries := *defaultConfig.LED.ConfirmRetries
	cfg.LED.ConfirmRetries = &retries
	return &cfg
}

// Candidates are the files tried, in order, when no path is given.
func Candidates() []string {
	return []string{
		"/etc/jbod/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/jbod/config.yaml"),
		"config.yaml",
	}
}

// Load reads path, or the first existing candidate file when path is empty,
// and fills unset values with defaults. With no file at all the defaults
// are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, c := range Candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = d.Discovery.Concurrency
	}
	if c.Discovery.CommandTimeout == 0 {
		c.Discovery.CommandTimeout = d.Discovery.CommandTimeout
	}
	if c.LED.ConfirmRetries == nil {
		c.LED.ConfirmRetries = d.LED.ConfirmRetries
	}
	if c.LED.ConfirmDelay == 0 {
		c.LED.ConfirmDelay = d.LED.ConfirmDelay
	}
	if c.LED.ConfirmTimeout == 0 {
		c.LED.ConfirmTimeout = d.LED.ConfirmTimeout
	}
	if c.LED.LocateDuration == 0 {
		c.LED.LocateDuration = d.LED.LocateDuration
	}
	if c.Exporter.Listen == "" {
		c.Exporter.Listen = d.Exporter.Listen
	}
	if c.Exporter.ScrapeTimeout == 0 {
		c.Exporter.ScrapeTimeout = d.Exporter.ScrapeTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("discovery.concurrency must not be negative"))
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"discovery.command_timeout", c.Discovery.CommandTimeout},
		{"led.confirm_delay", c.LED.ConfirmDelay},
		{"led.confirm_timeout", c.LED.ConfirmTimeout},
		{"led.locate_duration", c.LED.LocateDuration},
		{"exporter.scrape_timeout", c.Exporter.ScrapeTimeout},
	}
	for _, v := range durations {
		if v.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", v.name))
		}
	}
	if c.LED.ConfirmRetries != nil && *c.LED.ConfirmRetries < 0 {
		errs = append(errs, fmt.Errorf("led.confirm_retries must not be negative"))
	}
	if c.Exporter.Listen != "" {
		if _, port, err := net.SplitHostPort(c.Exporter.Listen); err != nil {
			errs = append(errs, fmt.Errorf("exporter.listen: %w", err))
		} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("exporter.listen: invalid port %q", port))
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Retries returns the configured confirmation retry count.
func (l LED) Retries() int {
	if l.ConfirmRetries == nil {
		return defaultRetries
	}
	return *l.ConfirmRetries
}

// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config is the configuration of papistat.
//
// Settings are layered: defaults, then a YAML file, then PAPISTAT_*
// environment variables, then command-line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type (
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	}

	Sample struct {
		// Window is how long the derived metrics count for.
		Window time.Duration `yaml:"window" env:"WINDOW"`
	}

	Web struct {
		ListenAddress string        `yaml:"listenAddress" env:"LISTEN_ADDRESS"`
		Interval      time.Duration `yaml:"interval" env:"INTERVAL"`
	}

	// Config is the complete papistat configuration.
	Config struct {
		Log     Log      `yaml:"log" envPrefix:"LOG_"`
		Backend string   `yaml:"backend" env:"BACKEND"`
		Events  []string `yaml:"events" env:"EVENTS"`
		Sample  Sample   `yaml:"sample" envPrefix:"SAMPLE_"`
		Web     Web      `yaml:"web" envPrefix:"WEB_"`
	}
)

const (
	// Flags
	LogLevelFlag     = "log.level"
	LogFormatFlag    = "log.format"
	BackendFlag      = "backend"
	EventsFlag       = "event"
	SampleWindowFlag = "sample.window"
	ListenFlag       = "web.listen-address"
	IntervalFlag     = "web.interval"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "PAPISTAT_"
)

// Backends are the counter subsystems papistat can use.
var Backends = []string{"sim", "perf"}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Backend: defaultBackend,
		Events:  []string{"PAPI_TOT_CYC", "PAPI_TOT_INS"},
		Sample: Sample{
			Window: 10 * time.Millisecond,
		},
		Web: Web{
			ListenAddress: ":9464",
			Interval:      5 * time.Second,
		},
	}
}

// Load loads configuration from an io.Reader on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// ApplyEnv overrides c with the PAPISTAT_* variables set in environ, which
// is in the form of [os.Environ]. If environ is nil, the process
// environment is used.
func (c *Config) ApplyEnv(environ []string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = make(map[string]string, len(environ))
		for _, kv := range environ {
			if k, v, ok := strings.Cut(kv, "="); ok {
				opts.Environment[k] = v
			}
		}
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	c.sanitize()
	return c.Validate()
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: console or json").Default("console").Enum("console", "json")

	backend := app.Flag(BackendFlag, "Counter subsystem: "+strings.Join(Backends, ", ")).Default(defaultBackend).Enum(Backends...)
	events := app.Flag(EventsFlag, "Event to count, by preset or native name (repeatable)").Short('e').Strings()
	window := app.Flag(SampleWindowFlag, "Measurement window of derived metrics").Default("10ms").Duration()

	listen := app.Flag(ListenFlag, "Address to serve metrics on").Default(":9464").String()
	interval := app.Flag(IntervalFlag, "Interval between exported samples").Default("5s").Duration()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}
		if flagsSet[BackendFlag] {
			cfg.Backend = *backend
		}
		if flagsSet[EventsFlag] {
			cfg.Events = *events
		}
		if flagsSet[SampleWindowFlag] {
			cfg.Sample.Window = *window
		}
		if flagsSet[ListenFlag] {
			cfg.Web.ListenAddress = *listen
		}
		if flagsSet[IntervalFlag] {
			cfg.Web.Interval = *interval
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Backend = strings.TrimSpace(c.Backend)
	c.Web.ListenAddress = strings.TrimSpace(c.Web.ListenAddress)
	events := c.Events[:0]
	for _, ev := range c.Events {
		if ev = strings.TrimSpace(ev); ev != "" {
			events = append(events, ev)
		}
	}
	c.Events = events
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"console": true,
			"json":    true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // backend
		valid := false
		for _, b := range Backends {
			valid = valid || b == c.Backend
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("invalid backend: %s", c.Backend))
		}
	}
	if len(c.Events) == 0 {
		errs = append(errs, "no events")
	}
	if c.Sample.Window <= 0 {
		errs = append(errs, fmt.Sprintf("invalid sample window: %s", c.Sample.Window))
	}
	if c.Web.ListenAddress == "" {
		errs = append(errs, "empty listen address")
	}
	if c.Web.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("invalid interval: %s", c.Web.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return string(bytes)
}

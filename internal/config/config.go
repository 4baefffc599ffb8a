// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the embctl configuration file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/embctl/internal/family"
	"github.com/tombee/embctl/internal/log"
	"github.com/tombee/embctl/internal/tools"
	"github.com/tombee/embctl/internal/tracing"
	embctlerrors "github.com/tombee/embctl/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete embctl configuration.
type Config struct {
	Log        log.Config       `yaml:"log"`
	Registry   RegistryConfig   `yaml:"registry"`
	Toolchains ToolchainsConfig `yaml:"toolchains"`
	Tools      tools.Overrides  `yaml:"tools"`
	Debug      DebugConfig      `yaml:"debug"`
	Watch      WatchConfig      `yaml:"watch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    tracing.Config   `yaml:"tracing"`
}

// RegistryConfig locates the toolchain registry.
type RegistryConfig struct {
	// Path is the registry file. Environment: EMBCTL_REGISTRY
	// Default: <config dir>/toolchains.json
	Path string `yaml:"path,omitempty"`

	// Backend is json or sqlite. Environment: EMBCTL_REGISTRY_BACKEND
	Backend string `yaml:"backend,omitempty"`
}

// ToolchainsConfig controls detection and validation.
type ToolchainsConfig struct {
	// ProbeTimeout bounds each compiler version query.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`

	// SearchPaths are extra detection roots keyed by toolchain family
	// (arm-gcc, ti-cgt).
	SearchPaths map[string][]string `yaml:"search_paths,omitempty"`
}

// DebugConfig controls debug server bring-up.
type DebugConfig struct {
	// Host is where the debug server control port is probed.
	Host string `yaml:"host,omitempty"`

	// Port is the debug server control port. Environment: EMBCTL_DEBUG_PORT
	// Default: 3333
	Port int `yaml:"port,omitempty"`

	// ReadyTimeout bounds the wait for the control port.
	// Default: 5s
	ReadyTimeout time.Duration `yaml:"ready_timeout,omitempty"`

	// PollInterval is the delay between readiness probes.
	// Default: 500ms
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// AttachGrace is how long the debug client must survive after launch
	// to count as attached.
	// Default: 1s
	AttachGrace time.Duration `yaml:"attach_grace,omitempty"`
}

// WatchConfig controls rebuild-on-change.
type WatchConfig struct {
	// Debounce coalesces bursts of file events.
	// Default: 300ms
	Debounce time.Duration `yaml:"debounce,omitempty"`

	// MinInterval is the minimum time between two triggered rebuilds.
	// Default: 2s
	MinInterval time.Duration `yaml:"min_interval,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: log.Config{
			Level:  "info",
			Format: log.FormatText,
		},
		Registry: RegistryConfig{
			Backend: "json",
		},
		Toolchains: ToolchainsConfig{
			ProbeTimeout: 5 * time.Second,
		},
		Debug: DebugConfig{
			Host:         "localhost",
			Port:         3333,
			ReadyTimeout: 5 * time.Second,
			PollInterval: 500 * time.Millisecond,
			AttachGrace:  time.Second,
		},
		Watch: WatchConfig{
			Debounce:    300 * time.Millisecond,
			MinInterval: 2 * time.Second,
		},
		Tracing: tracing.Config{
			Pretty: true,
		},
	}
}

// Load reads configPath when non-empty, fills defaults, applies environment
// overrides and validates the result. Environment variables take precedence
// over the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &embctlerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &embctlerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// LoadDefault loads the config file from the XDG location if it exists.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Load("")
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = d.Registry.Backend
	}
	if c.Toolchains.ProbeTimeout == 0 {
		c.Toolchains.ProbeTimeout = d.Toolchains.ProbeTimeout
	}
	if c.Debug.Host == "" {
		c.Debug.Host = d.Debug.Host
	}
	if c.Debug.Port == 0 {
		c.Debug.Port = d.Debug.Port
	}
	if c.Debug.ReadyTimeout == 0 {
		c.Debug.ReadyTimeout = d.Debug.ReadyTimeout
	}
	if c.Debug.PollInterval == 0 {
		c.Debug.PollInterval = d.Debug.PollInterval
	}
	if c.Debug.AttachGrace == 0 {
		c.Debug.AttachGrace = d.Debug.AttachGrace
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = d.Watch.Debounce
	}
	if c.Watch.MinInterval == 0 {
		c.Watch.MinInterval = d.Watch.MinInterval
	}
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	log.ApplyEnv(&c.Log)

	if val := os.Getenv("EMBCTL_REGISTRY"); val != "" {
		c.Registry.Path = val
	}
	if val := os.Getenv("EMBCTL_REGISTRY_BACKEND"); val != "" {
		c.Registry.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("EMBCTL_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Debug.Port = port
		}
	}
	if val := os.Getenv("EMBCTL_PROBE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Toolchains.ProbeTimeout = d
		}
	}
	if val := os.Getenv("EMBCTL_TRACING"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if !log.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Log.Format != log.FormatJSON && c.Log.Format != log.FormatText {
		errs = append(errs, fmt.Sprintf("log.format: must be json or text, got %q", c.Log.Format))
	}
	switch c.Registry.Backend {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("registry.backend: must be json or sqlite, got %q", c.Registry.Backend))
	}
	if c.Toolchains.ProbeTimeout <= 0 {
		errs = append(errs, "toolchains.probe_timeout: must be positive")
	}
	for name := range c.Toolchains.SearchPaths {
		if _, err := family.ParseToolchain(name); err != nil {
			errs = append(errs, fmt.Sprintf("toolchains.search_paths: %v", err))
		}
	}
	if c.Debug.Port < 1 || c.Debug.Port > 65535 {
		errs = append(errs, fmt.Sprintf("debug.port: must be in 1..65535, got %d", c.Debug.Port))
	}
	if c.Debug.ReadyTimeout <= 0 {
		errs = append(errs, "debug.ready_timeout: must be positive")
	}
	if c.Debug.PollInterval <= 0 {
		errs = append(errs, "debug.poll_interval: must be positive")
	}
	if c.Debug.AttachGrace < 0 {
		errs = append(errs, "debug.attach_grace: must not be negative")
	}
	if c.Watch.Debounce <= 0 || c.Watch.MinInterval < 0 {
		errs = append(errs, "watch: debounce must be positive and min_interval not negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// SearchPaths converts the configured detection roots to family keys.
// Unknown family names are dropped; Validate reports them.
func (c *Config) SearchPaths() map[family.Toolchain][]string {
	out := make(map[family.Toolchain][]string, len(c.Toolchains.SearchPaths))
	for name, paths := range c.Toolchains.SearchPaths {
		if fam, err := family.ParseToolchain(name); err == nil {
			out[fam] = append(out[fam], paths...)
		}
	}
	return out
}

// RegistryPath returns the configured registry path or the default under
// the config directory.
func (c *Config) RegistryPath() (string, error) {
	if c.Registry.Path != "" {
		return c.Registry.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	name := "toolchains.json"
	if c.Registry.Backend == "sqlite" {
		name = "toolchains.db"
	}
	return filepath.Join(dir, name), nil
}

// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads the supervisor's runtime tuning knobs from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete tasksup runtime configuration.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Cleanup CleanupConfig `yaml:"cleanup"`
	Debug   bool          `yaml:"debug_mode"`
	Durable DurableConfig `yaml:"durable"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MonitorConfig tunes the periodic monitor loop.
type MonitorConfig struct {
	IntervalSeconds     int `yaml:"monitor_interval"`
	ZombieMaxAgeSeconds int `yaml:"zombie_max_age"`
	StarvationThreshold int `yaml:"starvation_threshold"`
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

func (m MonitorConfig) ZombieMaxAge() time.Duration {
	return time.Duration(m.ZombieMaxAgeSeconds) * time.Second
}

// CleanupConfig tunes the cancellation/cleanup protocol.
type CleanupConfig struct {
	CancelTimeoutSeconds int `yaml:"cancel_timeout"`
}

func (c CleanupConfig) CancelTimeout() time.Duration {
	return time.Duration(c.CancelTimeoutSeconds) * time.Second
}

// DurableConfig configures the optional Temporal-backed runtime.
type DurableConfig struct {
	Enabled   bool   `yaml:"enabled"`
	TaskQueue string `yaml:"task_queue"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures the optional OpenTelemetry exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	CollectorURL string  `yaml:"collector_url"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Default returns the configuration in effect when no file is loaded.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			IntervalSeconds:     60,
			ZombieMaxAgeSeconds: 300,
			StarvationThreshold: 120,
		},
		Cleanup: CleanupConfig{CancelTimeoutSeconds: 5},
		Durable: DurableConfig{TaskQueue: "tasksup-durable", Namespace: "default"},
		Tracing: TracingConfig{SamplingRate: 1.0},
	}
}

// Load reads configuration from tasksup.yaml in the current working
// directory, falling back to Default for any field the file leaves at its
// zero value.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	configPath := filepath.Join(cwd, "tasksup.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that monitor_interval, zombie_max_age and cancel_timeout
// are positive and that enabled durable/tracing blocks name their queue and
// collector. starvation_threshold and sampling_rate are not checked.
func (c *Config) Validate() error {
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor_interval must be positive")
	}
	if c.Monitor.ZombieMaxAgeSeconds <= 0 {
		return fmt.Errorf("zombie_max_age must be positive")
	}
	if c.Cleanup.CancelTimeoutSeconds <= 0 {
		return fmt.Errorf("cancel_timeout must be positive")
	}
	if c.Durable.Enabled && c.Durable.TaskQueue == "" {
		return fmt.Errorf("durable.task_queue is required when durable.enabled is true")
	}
	if c.Tracing.Enabled && c.Tracing.CollectorURL == "" {
		return fmt.Errorf("tracing.collector_url is required when tracing.enabled is true")
	}
	return nil
}

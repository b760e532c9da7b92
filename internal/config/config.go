// Package config loads the process-wide Config from YAML, covering
// the ambient settings every subsystem (container, module runtime,
// queue) needs at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	Container ContainerConfig `yaml:"container"`
	Module    ModuleConfig    `yaml:"module"`
	Queue     QueueConfig     `yaml:"queue"`
}

// ContainerConfig controls container build behavior.
type ContainerConfig struct {
	// Profile selects which conditional bindings (InProfile) apply.
	Profile string `yaml:"profile"`
}

// ModuleConfig controls the module runtime's lifecycle timing.
type ModuleConfig struct {
	// InitTimeout is the configured bound on a single module's
	// Initialize phase. module.Runtime does not read it and applies no
	// timeout of its own.
	InitTimeout time.Duration `yaml:"init_timeout"`
}

// QueueConfig controls queue backend selection and worker behavior.
type QueueConfig struct {
	// Backend selects "memory" or "redis".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`

	// WorkerPoolSize is the number of concurrent dequeue loops.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// SchedulerTick is how often the cron scheduler checks for due jobs.
	SchedulerTick time.Duration `yaml:"scheduler_tick"`

	Retry RetryConfig `yaml:"retry"`
}

// RedisConfig holds connection options for the Redis queue backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RetryConfig holds retry parameters for jobs that don't specify their
// own RetryStrategy. The queue package does not read it: NewJobEntry
// sets FixedRetry{Delay: 1s, MaxAttempts: maxRetries}, and the backends
// fall back to the same strategy when a job's Retry is nil.
type RetryConfig struct {
	Strategy    string        `yaml:"strategy"` // "fixed" | "exponential" | "linear"
	Delay       time.Duration `yaml:"delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Max         time.Duration `yaml:"max"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Default returns a Config with the settings a development process
// should run with, absent an explicit file.
func Default() Config {
	return Config{
		Container: ContainerConfig{Profile: "development"},
		Module:    ModuleConfig{InitTimeout: 30 * time.Second},
		Queue: QueueConfig{
			Backend:        "memory",
			WorkerPoolSize: 4,
			SchedulerTick:  30 * time.Second,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "ignite:queue",
			},
			Retry: RetryConfig{
				Strategy:    "fixed",
				Delay:       time.Second,
				MaxAttempts: 3,
			},
		},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so an incomplete file only overrides the fields it sets.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

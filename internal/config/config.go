// Package config loads process settings and job definitions from one YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the launcher.
type Config struct {
	// Address of the read API and event stream
	ServerAddr string

	LogLevel string

	// Docker engine endpoint. Empty falls back to DOCKER_HOST and friends.
	DockerHost string

	// Host-mode working directory root
	WorkDir string

	// Wait for in-flight runs after a shutdown signal
	ShutdownGrace time.Duration

	// Broadcaster heartbeat
	HeartbeatInterval time.Duration

	// HTTP read/write timeout for non-stream routes
	ClientTimeout time.Duration

	PollInterval time.Duration
	MaxBackoff   time.Duration

	// How long a worker stays in the roster without a heartbeat
	WorkerTTL time.Duration

	// Default attempt count for queued jobs
	MaxAttempts int

	// OTLP collector address. Empty disables tracing.
	OTELEndpoint string

	// Enqueue rate limit per namespace
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Bearer token required to enqueue through the API. Empty leaves enqueue open.
	APIToken string

	Jobs []Job
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("docker.host", "")
	v.SetDefault("runtime.workdir", "")
	v.SetDefault("runtime.shutdown_grace", 3*time.Second)
	v.SetDefault("runtime.heartbeat_interval", 500*time.Millisecond)
	v.SetDefault("runtime.client_timeout", 10*time.Second)
	v.SetDefault("runtime.poll_interval", 1*time.Second)
	v.SetDefault("runtime.max_backoff", 30*time.Second)
	v.SetDefault("runtime.worker_ttl", 30*time.Second)
	v.SetDefault("runtime.max_attempts", 3)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("rate_limit.per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("api.token", "")
}

// LoadSettings reads process settings from path (optional) and JOBDECK_* environment variables.
// Environment variables win over the file.
func LoadSettings(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("JOBDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ServerAddr:         v.GetString("server.addr"),
		LogLevel:           strings.ToLower(v.GetString("log.level")),
		DockerHost:         v.GetString("docker.host"),
		WorkDir:            v.GetString("runtime.workdir"),
		ShutdownGrace:      v.GetDuration("runtime.shutdown_grace"),
		HeartbeatInterval:  v.GetDuration("runtime.heartbeat_interval"),
		ClientTimeout:      v.GetDuration("runtime.client_timeout"),
		PollInterval:       v.GetDuration("runtime.poll_interval"),
		MaxBackoff:         v.GetDuration("runtime.max_backoff"),
		WorkerTTL:          v.GetDuration("runtime.worker_ttl"),
		MaxAttempts:        v.GetInt("runtime.max_attempts"),
		OTELEndpoint:       v.GetString("otel.endpoint"),
		RateLimitPerSecond: v.GetFloat64("rate_limit.per_second"),
		RateLimitBurst:     v.GetInt("rate_limit.burst"),
		APIToken:           v.GetString("api.token"),
	}

	if !validLogLevels[cfg.LogLevel] {
		return nil, fmt.Errorf("invalid log.level %q (must be debug, info, warn or error)", cfg.LogLevel)
	}
	if cfg.ShutdownGrace <= 0 || cfg.HeartbeatInterval <= 0 || cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("runtime intervals must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("runtime.max_attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	return cfg, nil
}

// Load reads settings and job definitions from the file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file is required")
	}
	cfg, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	jobs, err := ParseJobs(data)
	if err != nil {
		return nil, err
	}
	cfg.Jobs = jobs
	return cfg, nil
}

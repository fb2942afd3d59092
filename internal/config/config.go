// Package config provides the configuration structure for synthd.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults applied to fields the TOML document leaves unset.
const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8000
	defaultAPIBase          = "/api"
	defaultEngineTimeoutSec = 300
	defaultSpeed            = 1.0
	defaultNFEStep          = 64
	defaultSeed             = -1
	defaultFormat           = "mp3"
	defaultWorkers          = 1
	defaultQueueDepth       = 256
	defaultWebhookWorkers   = 2
	defaultWebhookQueue     = 64
	defaultWebhookTimeout   = 5
	defaultRetentionSec     = 3600
	defaultIntervalSec      = 300
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	APIBase string `toml:"api_base"`
}

// PathsConfig holds the directory layout for voices, artifacts and logs.
type PathsConfig struct {
	VoicesDir   string `toml:"voices_dir"`
	OutputDir   string `toml:"output_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// EngineConfig holds the connection to the inference sidecar.
type EngineConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SynthesisConfig holds per-request parameter defaults.
type SynthesisConfig struct {
	DefaultSpeed   float64 `toml:"default_speed"`
	DefaultNFEStep int     `toml:"default_nfe_step"`
	DefaultSeed    int64   `toml:"default_seed"`
	DefaultFormat  string  `toml:"default_format"`
}

// SchedulerConfig shapes the synthesis worker pool. The shared model is a
// single-flight resource, so workers defaults to one.
type SchedulerConfig struct {
	Workers    int `toml:"workers"`
	QueueDepth int `toml:"queue_depth"`
}

// WebhookConfig shapes the webhook dispatcher.
type WebhookConfig struct {
	Workers        int `toml:"workers"`
	QueueDepth     int `toml:"queue_depth"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// CleanupConfig holds the artifact retention policy.
type CleanupConfig struct {
	RetentionSeconds int `toml:"retention_seconds"`
	IntervalSeconds  int `toml:"interval_seconds"`
}

// NATSConfig holds the optional completion-event publisher settings. An
// empty URL disables publishing.
type NATSConfig struct {
	URL              string `toml:"url"`
	CompletedSubject string `toml:"completed_subject"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Paths     PathsConfig     `toml:"paths"`
	Engine    EngineConfig    `toml:"engine"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Cleanup   CleanupConfig   `toml:"cleanup"`
	NATS      NATSConfig      `toml:"nats"`
}

// Load loads the configuration for synthd and fills in defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Server.APIBase == "" {
		c.Server.APIBase = defaultAPIBase
	}

	if c.Engine.TimeoutSeconds == 0 {
		c.Engine.TimeoutSeconds = defaultEngineTimeoutSec
	}

	if c.Synthesis.DefaultSpeed == 0 {
		c.Synthesis.DefaultSpeed = defaultSpeed
	}

	if c.Synthesis.DefaultNFEStep == 0 {
		c.Synthesis.DefaultNFEStep = defaultNFEStep
	}

	if c.Synthesis.DefaultSeed == 0 {
		c.Synthesis.DefaultSeed = defaultSeed
	}

	if c.Synthesis.DefaultFormat == "" {
		c.Synthesis.DefaultFormat = defaultFormat
	}

	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = defaultWorkers
	}

	if c.Scheduler.QueueDepth == 0 {
		c.Scheduler.QueueDepth = defaultQueueDepth
	}

	if c.Webhook.Workers == 0 {
		c.Webhook.Workers = defaultWebhookWorkers
	}

	if c.Webhook.QueueDepth == 0 {
		c.Webhook.QueueDepth = defaultWebhookQueue
	}

	if c.Webhook.TimeoutSeconds == 0 {
		c.Webhook.TimeoutSeconds = defaultWebhookTimeout
	}

	if c.Cleanup.RetentionSeconds == 0 {
		c.Cleanup.RetentionSeconds = defaultRetentionSec
	}

	if c.Cleanup.IntervalSeconds == 0 {
		c.Cleanup.IntervalSeconds = defaultIntervalSec
	}
}

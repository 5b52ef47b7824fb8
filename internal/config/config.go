// Package config provides YAML-based configuration loading for Taskwire.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Taskwire configuration, loaded from taskwire.yaml.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// GatewayConfig holds connection settings for the agent gateway.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"` // optional bearer token; tw login can store it

	// Request budgets in seconds. Deep research submissions get a longer
	// budget than synchronous request types.
	RequestTimeoutSec  int `yaml:"request_timeout_sec"`  // default 120
	ResearchTimeoutSec int `yaml:"research_timeout_sec"` // default 600

	// Conversation polling.
	PollIntervalMs       int `yaml:"poll_interval_ms"`       // default 2500
	InactivityTimeoutSec int `yaml:"inactivity_timeout_sec"` // default 180
	TaskPollIntervalSec  int `yaml:"task_poll_interval_sec"` // default 10
	TaskPollAttempts     int `yaml:"task_poll_attempts"`     // default 60
}

// RequestTimeout returns the synchronous request budget as a Duration.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSec) * time.Second
}

// ResearchTimeout returns the deep-research submission budget as a Duration.
func (g GatewayConfig) ResearchTimeout() time.Duration {
	return time.Duration(g.ResearchTimeoutSec) * time.Second
}

// PollInterval returns the conversation poll interval as a Duration.
func (g GatewayConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalMs) * time.Millisecond
}

// InactivityTimeout returns the idle-close threshold as a Duration.
func (g GatewayConfig) InactivityTimeout() time.Duration {
	return time.Duration(g.InactivityTimeoutSec) * time.Second
}

// TaskPollInterval returns the task status poll interval as a Duration.
func (g GatewayConfig) TaskPollInterval() time.Duration {
	return time.Duration(g.TaskPollIntervalSec) * time.Second
}

// DatabaseConfig selects the transcript store. SQLite is the default;
// setting host switches to MySQL.
type DatabaseConfig struct {
	Path     string `yaml:"path"` // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// BridgeConfig holds chat-platform bridge settings.
type BridgeConfig struct {
	Platform   string        `yaml:"platform"`    // "slack" or "discord"
	DigestCron string        `yaml:"digest_cron"` // 5-field cron; empty disables the daily digest
	Slack      SlackConfig   `yaml:"slack"`
	Discord    DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken  string `yaml:"app_token"` // xapp-...
	BotToken  string `yaml:"bot_token"` // xoxb-...
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DashboardConfig holds local dashboard server settings.
type DashboardConfig struct {
	Port int `yaml:"port"` // default 8080
}

// NotifyConfig controls desktop notifications for task lifecycle events.
type NotifyConfig struct {
	Command string `yaml:"command"` // shell template, e.g. "notify-send 'Taskwire' '{{.Subject}}'"
}

// ScheduleConfig defines a recurring research job.
type ScheduleConfig struct {
	Name         string `yaml:"name"`
	Cron         string `yaml:"cron"` // 5-field cron expression
	Topic        string `yaml:"topic"`
	Depth        string `yaml:"depth"`
	AudienceType string `yaml:"audience_type"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Gateway.RequestTimeoutSec <= 0 {
		c.Gateway.RequestTimeoutSec = 120
	}
	if c.Gateway.ResearchTimeoutSec <= 0 {
		c.Gateway.ResearchTimeoutSec = 600
	}
	if c.Gateway.PollIntervalMs <= 0 {
		c.Gateway.PollIntervalMs = 2500
	}
	if c.Gateway.InactivityTimeoutSec <= 0 {
		c.Gateway.InactivityTimeoutSec = 180
	}
	if c.Gateway.TaskPollIntervalSec <= 0 {
		c.Gateway.TaskPollIntervalSec = 10
	}
	if c.Gateway.TaskPollAttempts <= 0 {
		c.Gateway.TaskPollAttempts = 60
	}
	if c.Database.Path == "" && c.Database.Host == "" {
		c.Database.Path = "taskwire.db"
	}
	if c.Database.Host != "" && c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Host != "" && c.Database.Name == "" {
		c.Database.Name = "taskwire"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	for i := range c.Schedules {
		if c.Schedules[i].Depth == "" {
			c.Schedules[i].Depth = "standard"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Gateway.BaseURL == "" {
		errs = append(errs, "gateway.base_url is required")
	}
	switch c.Bridge.Platform {
	case "":
		// bridge disabled
	case "slack":
		if c.Bridge.Slack.BotToken == "" {
			errs = append(errs, "bridge.slack.bot_token is required when platform is slack")
		}
		if c.Bridge.Slack.AppToken == "" {
			errs = append(errs, "bridge.slack.app_token is required when platform is slack")
		}
	case "discord":
		if c.Bridge.Discord.BotToken == "" {
			errs = append(errs, "bridge.discord.bot_token is required when platform is discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("bridge.platform %q is not supported (slack, discord)", c.Bridge.Platform))
	}
	for i, s := range c.Schedules {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].name is required", i))
		}
		if s.Cron == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].cron is required", i))
		}
		if s.Topic == "" {
			errs = append(errs, fmt.Sprintf("schedules[%d].topic is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Package config provides YAML-based configuration loading for the
// afterhours dispatch service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5m" parse. Plain
// integers are accepted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: bad duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: bad duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Config is the top-level service configuration, loaded from afterhours.yaml.
type Config struct {
	BaseURL  string         `yaml:"base_url"` // public URL for callbacks and ack links
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Ack      AckConfig      `yaml:"ack"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Retry    RetryConfig    `yaml:"retry"`
	Recovery RecoveryConfig `yaml:"recovery"`
}

// ServerConfig holds the webhook/API listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig selects and configures the record store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// TwilioConfig holds notification provider credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

// AckConfig controls secure-link acknowledgment tokens.
type AckConfig struct {
	LinkSecret string        `yaml:"link_secret"`
	LinkTTL    Duration `yaml:"link_ttl"`
}

// AlertConfig selects the internal alert platform.
type AlertConfig struct {
	Platform string        `yaml:"platform"` // "slack", "discord", or "" (log only)
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack alert settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord alert settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// RetryConfig holds the escalation timing tables and the secondary
// channel policy.
type RetryConfig struct {
	Normal    TimingConfig    `yaml:"normal"`
	High      TimingConfig    `yaml:"high"`
	Secondary SecondaryPolicy `yaml:"secondary"`
}

// TimingConfig is one urgency tier's escalation schedule. Offsets are
// measured from sequence start; len(Offsets) bounds the scheduled attempts.
type TimingConfig struct {
	Offsets     []Duration `yaml:"offsets"`
	Cutoff      Duration   `yaml:"cutoff"`
	MaxAttempts int        `yaml:"max_attempts"`
}

// SecondaryPolicy controls when a voice-call attempt is made alongside the
// primary text on the first dispatch. The original system's trigger was an
// undocumented disjunction of these four conditions; each is switchable here.
type SecondaryPolicy struct {
	OnOptIn        *bool `yaml:"on_opt_in"`
	OnHighUrgency  *bool `yaml:"on_high_urgency"`
	OnPrimaryFail  *bool `yaml:"on_primary_fail"`
	OnCarrierBlock *bool `yaml:"on_carrier_block"`
}

// RecoveryConfig controls the lost-dispatch recovery pass.
type RecoveryConfig struct {
	Staleness Duration `yaml:"staleness"`  // no event within this window = lost
	SweepCron string   `yaml:"sweep_cron"` // 5-field cron; empty disables the sweep
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
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "afterhours.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "afterhours"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Ack.LinkTTL == 0 {
		c.Ack.LinkTTL = Duration(2 * time.Hour)
	}
	if len(c.Retry.Normal.Offsets) == 0 {
		c.Retry.Normal.Offsets = []Duration{
			Duration(2 * time.Minute), Duration(5 * time.Minute),
			Duration(8 * time.Minute), Duration(11 * time.Minute),
			Duration(14 * time.Minute),
		}
	}
	if c.Retry.Normal.Cutoff == 0 {
		c.Retry.Normal.Cutoff = Duration(20 * time.Minute)
	}
	if c.Retry.Normal.MaxAttempts == 0 {
		c.Retry.Normal.MaxAttempts = 6
	}
	if len(c.Retry.High.Offsets) == 0 {
		c.Retry.High.Offsets = []Duration{
			Duration(1 * time.Minute), Duration(3 * time.Minute),
			Duration(5 * time.Minute), Duration(7 * time.Minute),
			Duration(9 * time.Minute),
		}
	}
	if c.Retry.High.Cutoff == 0 {
		c.Retry.High.Cutoff = Duration(12 * time.Minute)
	}
	if c.Retry.High.MaxAttempts == 0 {
		c.Retry.High.MaxAttempts = 6
	}
	c.Retry.Secondary.applyDefaults()
	if c.Recovery.Staleness == 0 {
		c.Recovery.Staleness = Duration(5 * time.Minute)
	}
	if c.Recovery.SweepCron == "" {
		c.Recovery.SweepCron = "*/5 * * * *"
	}
}

// applyDefaults enables every secondary trigger that was not explicitly set.
func (p *SecondaryPolicy) applyDefaults() {
	for _, f := range []**bool{&p.OnOptIn, &p.OnHighUrgency, &p.OnPrimaryFail, &p.OnCarrierBlock} {
		if *f == nil {
			on := true
			*f = &on
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite or mysql)", c.Database.Driver))
	}
	if c.Twilio.AccountSID == "" {
		errs = append(errs, "twilio.account_sid is required")
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, "twilio.auth_token is required")
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, "twilio.from_number is required")
	}
	if c.Ack.LinkSecret == "" {
		errs = append(errs, "ack.link_secret is required")
	}
	switch c.Alerts.Platform {
	case "", "slack", "discord":
	default:
		errs = append(errs, fmt.Sprintf("alerts.platform %q is not supported (slack, discord, or empty)", c.Alerts.Platform))
	}
	if c.Alerts.Platform == "slack" && c.Alerts.Slack.BotToken == "" {
		errs = append(errs, "alerts.slack.bot_token is required when platform is slack")
	}
	if c.Alerts.Platform == "discord" && c.Alerts.Discord.BotToken == "" {
		errs = append(errs, "alerts.discord.bot_token is required when platform is discord")
	}
	for name, t := range map[string]TimingConfig{"normal": c.Retry.Normal, "high": c.Retry.High} {
		if t.MaxAttempts-1 > len(t.Offsets) {
			errs = append(errs, fmt.Sprintf("retry.%s: max_attempts %d exceeds scheduled offsets (%d)", name, t.MaxAttempts, len(t.Offsets)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

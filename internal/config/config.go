package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/types"
)

// ErrUnauthorized is returned when a mutation carries a bad credential.
var ErrUnauthorized = errors.New("invalid credential")

// Monitoring controls the poll loop and retention.
type Monitoring struct {
	RefreshInterval     int      `json:"refresh_interval"` // seconds
	RetentionDays       int      `json:"retention_days"`
	Namespaces          []string `json:"namespaces"`
	AdminPassword       string   `json:"admin_password"`
	AlertOnStatusChange bool     `json:"alert_on_status_change"`
	AlertOnImageUpdate  bool     `json:"alert_on_image_update"`
	MonitorNodes        bool     `json:"monitor_nodes"`
}

// AlertWindow is one same-day time range during which alerts of the
// listed levels may be dispatched. An empty namespace list matches all.
type AlertWindow struct {
	Start      string   `json:"start"` // "HH:MM"
	End        string   `json:"end"`   // "HH:MM"
	Levels     []string `json:"levels"`
	Namespaces []string `json:"namespaces"`
}

// EmailSettings is the SMTP transport configuration.
type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	UseTLS   bool   `json:"use_tls"`
}

// WebhookSettings is the transport configuration shared by the
// HTTP-backed channels (chat-api, sms, bot).
type WebhookSettings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token"`
}

// Config is the process-wide operational configuration. It is loaded
// from persisted storage at startup and re-persisted on every mutation.
// The monitoring, alerting-schedule, and destinations sections are
// always present; missing pieces are filled from defaults at load.
type Config struct {
	Version       int                      `json:"version"`
	Monitoring    Monitoring               `json:"monitoring"`
	AlertSchedule []AlertWindow            `json:"alerting_schedule"`
	Destinations  []types.AlertDestination `json:"destinations"`
	Email         EmailSettings            `json:"email"`
	ChatAPI       WebhookSettings          `json:"chat_api"`
	SMS           WebhookSettings          `json:"sms"`
	Bot           WebhookSettings          `json:"bot"`
}

const currentVersion = 1

// Default returns the complete built-in configuration.
func Default() Config {
	return Config{
		Version: currentVersion,
		Monitoring: Monitoring{
			RefreshInterval:     600,
			RetentionDays:       30,
			Namespaces:          []string{"default", "monitoring"},
			AdminPassword:       "podwatch",
			AlertOnStatusChange: true,
			AlertOnImageUpdate:  true,
			MonitorNodes:        true,
		},
		AlertSchedule: []AlertWindow{
			{Start: "00:00", End: "23:59", Levels: []string{"info", "warning", "critical"}},
		},
		Destinations: []types.AlertDestination{},
		Email:        EmailSettings{SMTPHost: "localhost", SMTPPort: 25},
	}
}

// ApplyDefaults fills any missing section or zero field from the
// built-in defaults so a loaded config is always complete.
func ApplyDefaults(c Config) Config {
	def := Default()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Monitoring.RefreshInterval <= 0 {
		c.Monitoring.RefreshInterval = def.Monitoring.RefreshInterval
	}
	if c.Monitoring.RetentionDays <= 0 {
		c.Monitoring.RetentionDays = def.Monitoring.RetentionDays
	}
	if len(c.Monitoring.Namespaces) == 0 {
		c.Monitoring.Namespaces = def.Monitoring.Namespaces
	}
	if c.Monitoring.AdminPassword == "" {
		c.Monitoring.AdminPassword = def.Monitoring.AdminPassword
	}
	if c.AlertSchedule == nil {
		c.AlertSchedule = def.AlertSchedule
	}
	if c.Destinations == nil {
		c.Destinations = def.Destinations
	}
	if c.Email.SMTPHost == "" {
		c.Email.SMTPHost = def.Email.SMTPHost
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = def.Email.SMTPPort
	}
	return c
}

// Validate rejects configurations the rest of the system cannot act on.
func Validate(c Config) error {
	if c.Monitoring.RefreshInterval <= 0 {
		return fmt.Errorf("monitoring.refresh_interval must be positive")
	}
	if c.Monitoring.RetentionDays <= 0 {
		return fmt.Errorf("monitoring.retention_days must be positive")
	}
	for i, w := range c.AlertSchedule {
		if _, err := time.Parse("15:04", w.Start); err != nil {
			return fmt.Errorf("alerting_schedule[%d].start %q: %w", i, w.Start, err)
		}
		if _, err := time.Parse("15:04", w.End); err != nil {
			return fmt.Errorf("alerting_schedule[%d].end %q: %w", i, w.End, err)
		}
	}
	for i, d := range c.Destinations {
		switch d.Channel {
		case types.ChannelEmail, types.ChannelChatAPI, types.ChannelSMS, types.ChannelBot:
		default:
			return fmt.Errorf("destinations[%d]: unknown channel %q", i, d.Channel)
		}
		if d.Address == "" {
			return fmt.Errorf("destinations[%d]: address is required", i)
		}
	}
	return nil
}

// Persistence is the storage boundary for the config blob.
type Persistence interface {
	LoadConfig() ([]byte, bool, error)
	SaveConfig(raw []byte) error
}

// Load reads the persisted configuration, fills defaults, validates,
// and persists the result back so subsequent loads are consistent. A
// missing or unreadable blob falls back to the complete defaults.
func Load(store Persistence) (Config, error) {
	raw, found, err := store.LoadConfig()
	if err != nil || !found {
		if err != nil {
			klog.Errorf("Failed to load configuration, using defaults: %v", err)
		}
		def := Default()
		if err := Save(store, def); err != nil {
			return def, fmt.Errorf("failed to persist default config: %w", err)
		}
		return def, nil
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		klog.Errorf("Persisted configuration unreadable, using defaults: %v", err)
		def := Default()
		if err := Save(store, def); err != nil {
			return def, fmt.Errorf("failed to persist default config: %w", err)
		}
		return def, nil
	}

	cfg = ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		klog.Errorf("Persisted configuration invalid, using defaults: %v", err)
		def := Default()
		if err := Save(store, def); err != nil {
			return def, fmt.Errorf("failed to persist default config: %w", err)
		}
		return def, nil
	}

	// Re-persist so filled defaults are durable.
	if err := Save(store, cfg); err != nil {
		return cfg, fmt.Errorf("failed to re-persist config: %w", err)
	}
	return cfg, nil
}

// Save serializes and persists a configuration.
func Save(store Persistence, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := store.SaveConfig(raw); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

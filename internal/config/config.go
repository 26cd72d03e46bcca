// Package config provides the YAML configuration model and load/save behavior.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes the LMS activities endpoint and its credentials.
type FeedConfig struct {
	// URL is the activities listing endpoint.
	URL string `yaml:"url" json:"url"`
	// StudentID is passed through as a query filter.
	StudentID string `yaml:"student_id" json:"student_id"`
	// CSRFToken and Cookie are the session headers the endpoint expects.
	CSRFToken string `yaml:"csrf_token" json:"-"`
	Cookie    string `yaml:"cookie" json:"-"`
}

// GoogleConfig holds Google Calendar store settings.
type GoogleConfig struct {
	// AccessToken is a pre-acquired bearer token. Token acquisition and
	// refresh happen outside this process.
	AccessToken string `yaml:"access_token" json:"-"`
	// BaseURL overrides the Calendar API endpoint, mainly for tests.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// DiscordConfig holds the chat delivery settings.
type DiscordConfig struct {
	// BotToken authenticates REST calls as the bot user.
	BotToken string `yaml:"bot_token" json:"-"`
	// StatusChannelID, if set, receives a startup summary message.
	StatusChannelID string `yaml:"status_channel_id,omitempty" json:"status_channel_id,omitempty"`
	// MessageLimit is the per-message size cap. Discord's is 2000.
	MessageLimit int `yaml:"message_limit" json:"message_limit"`
	// BaseURL overrides the Discord API endpoint, mainly for tests.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the admin API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA display timezone (e.g. "Asia/Bangkok").
	Timezone string `yaml:"timezone" json:"timezone"`

	// StoreBackend selects the calendar store: "google" or "sqlite".
	StoreBackend string `yaml:"store_backend" json:"store_backend"`

	// DailyTrigger is the local wall-clock time ("HH:MM") of the daily cycle.
	DailyTrigger string `yaml:"daily_trigger" json:"daily_trigger"`

	// FetchOnStart runs a full cycle when the process starts.
	FetchOnStart bool `yaml:"fetch_on_start" json:"fetch_on_start"`
	// FetchDaily gates the reconcile half of the daily cycle. Notifications
	// still run when it is off.
	FetchDaily bool `yaml:"fetch_daily" json:"fetch_daily"`

	// WindowHours is the notification lookahead set, in hours.
	WindowHours []int `yaml:"window_hours" json:"window_hours"`

	// Classes maps LMS group ids to display names.
	Classes map[int]string `yaml:"classes" json:"classes"`

	// CalendarChannels maps calendar ids to chat channel ids.
	CalendarChannels map[string]string `yaml:"calendar_channels" json:"calendar_channels"`

	// SyncCalendarID is the calendar that reconciliation writes activities
	// into.
	SyncCalendarID string `yaml:"sync_calendar_id" json:"sync_calendar_id"`

	// BaseSiteURL builds activity links; links are omitted when empty.
	BaseSiteURL string `yaml:"base_site_url,omitempty" json:"base_site_url,omitempty"`

	// SendPacingMS is the delay after each channel write or delete.
	SendPacingMS int `yaml:"send_pacing_ms" json:"send_pacing_ms"`
	// FetchPacingMS is the delay between per-class feed fetches.
	FetchPacingMS int `yaml:"fetch_pacing_ms" json:"fetch_pacing_ms"`
	// HTTPTimeoutSec bounds each collaborator HTTP call.
	HTTPTimeoutSec int `yaml:"http_timeout_sec" json:"http_timeout_sec"`

	Feed    FeedConfig    `yaml:"feed" json:"feed"`
	Google  GoogleConfig  `yaml:"google" json:"google"`
	Discord DiscordConfig `yaml:"discord" json:"discord"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8098",
		Timezone:         "Asia/Bangkok",
		StoreBackend:     "google",
		DailyTrigger:     "09:00",
		FetchOnStart:     true,
		FetchDaily:       true,
		WindowHours:      []int{1, 12, 24},
		Classes:          map[int]string{},
		CalendarChannels: map[string]string{},
		SendPacingMS:     500,
		FetchPacingMS:    5000,
		HTTPTimeoutSec:   30,
		Discord:          DiscordConfig{MessageLimit: 2000},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8098"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Bangkok"
	}
	switch c.StoreBackend {
	case "google", "sqlite":
	default:
		c.StoreBackend = "google"
	}
	if c.DailyTrigger == "" {
		c.DailyTrigger = "09:00"
	}
	if len(c.WindowHours) == 0 {
		c.WindowHours = []int{1, 12, 24}
	}
	if c.Classes == nil {
		c.Classes = map[int]string{}
	}
	if c.CalendarChannels == nil {
		c.CalendarChannels = map[string]string{}
	}
	if c.SendPacingMS <= 0 {
		c.SendPacingMS = 500
	}
	if c.FetchPacingMS <= 0 {
		c.FetchPacingMS = 5000
	}
	if c.HTTPTimeoutSec <= 0 {
		c.HTTPTimeoutSec = 30
	}
	if c.Discord.MessageLimit <= 0 {
		c.Discord.MessageLimit = 2000
	}
}

// Validate reports configuration problems that make startup impossible.
func (c *Config) Validate() error {
	if len(c.CalendarChannels) == 0 {
		return errors.New("no calendar to channel mappings configured")
	}
	if c.SyncCalendarID == "" {
		return errors.New("sync_calendar_id is required")
	}
	if c.Discord.BotToken == "" {
		return errors.New("discord bot_token is required")
	}
	if c.StoreBackend == "google" && c.Google.AccessToken == "" {
		return errors.New("google access_token is required for the google store backend")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, _, err := ParseClock(c.DailyTrigger); err != nil {
		return fmt.Errorf("invalid daily_trigger %q: %w", c.DailyTrigger, err)
	}
	return nil
}

// Location resolves the configured display timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ParseClock parses a "HH:MM" wall-clock string.
func ParseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("parsing clock time: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time out of range: %s", s)
	}
	return hour, minute, nil
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".homework-notify-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

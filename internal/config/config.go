package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Workers       WorkersConfig       `toml:"workers"`
	Quota         QuotaConfig         `toml:"quota"`
	Outreach      OutreachConfig      `toml:"outreach"`
	Social        SocialConfig        `toml:"social"`
	LLM           LLMConfig           `toml:"llm"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath     string `toml:"database_path"`
	RateLimiterState string `toml:"rate_limiter_state"`
	AvatarPatterns   string `toml:"avatar_patterns"` // optional YAML overlay
}

// WorkersConfig holds polling intervals and the active-hours window
type WorkersConfig struct {
	ScanInterval     time.Duration `toml:"scan_interval"`
	QueueInterval    time.Duration `toml:"queue_interval"`
	ExecutorInterval time.Duration `toml:"executor_interval"`
	ReplyInterval    time.Duration `toml:"reply_interval"`
	MetricsInterval  time.Duration `toml:"metrics_interval"`
	StalenessCron    string        `toml:"staleness_cron"`

	ActiveHourStart int    `toml:"active_hour_start"`
	ActiveHourEnd   int    `toml:"active_hour_end"`
	Timezone        string `toml:"timezone"`

	BatchSize int `toml:"batch_size"`
}

// QuotaConfig holds the configured base daily limit per action type
type QuotaConfig struct {
	FirstContact int `toml:"first_contact"`
	FollowupA1   int `toml:"followup_a_1"`
	FollowupA2   int `toml:"followup_a_2"`
	FollowupA3   int `toml:"followup_a_3"`
	FollowupB    int `toml:"followup_b"`
	FollowupC    int `toml:"followup_c"`
}

// OutreachConfig holds outreach pacing and planning settings
type OutreachConfig struct {
	CutoffDays    int  `toml:"cutoff_days"`
	RequireAvatar bool `toml:"require_avatar"`

	FollowupDelaysDays []int `toml:"followup_delays_days"`

	// Floor of the randomized pause between two sends of the same action
	// type; the executor draws from [floor, 2*floor].
	ActionDelayFloor time.Duration `toml:"action_delay_floor"`

	// Minimum spacing between two automated replies into one conversation
	ReplyThrottle time.Duration `toml:"reply_throttle"`

	StaleAfterDays int `toml:"stale_after_days"`
}

// SocialConfig holds the messaging provider API settings. The API key is
// read from the environment, never from the config file.
type SocialConfig struct {
	DSN       string `toml:"dsn"` // provider host, e.g. api3.unipile.com:13333
	APIKeyEnv string `toml:"api_key_env"`
	AccountID string `toml:"account_id"`
}

// LLMProviderConfig describes one OpenAI-compatible completion endpoint
type LLMProviderConfig struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
}

// LLMConfig holds the provider chain, tried in order
type LLMConfig struct {
	Providers []LLMProviderConfig `toml:"providers"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".outreach-orchestrator")
	return &Config{
		General: GeneralConfig{
			DatabasePath:     filepath.Join(base, "outreach.db"),
			RateLimiterState: filepath.Join(base, "rate_limiter.json"),
		},
		Workers: WorkersConfig{
			ScanInterval:     2 * time.Hour,
			QueueInterval:    30 * time.Minute,
			ExecutorInterval: 20 * time.Minute,
			ReplyInterval:    5 * time.Minute,
			MetricsInterval:  5 * time.Minute,
			StalenessCron:    "0 9 * * *",
			ActiveHourStart:  6,
			ActiveHourEnd:    22,
			Timezone:         "Europe/Paris",
			BatchSize:        10,
		},
		Quota: QuotaConfig{
			FirstContact: 50,
			FollowupA1:   30,
			FollowupA2:   30,
			FollowupA3:   30,
			FollowupB:    20,
			FollowupC:    10,
		},
		Outreach: OutreachConfig{
			CutoffDays:         30,
			RequireAvatar:      true,
			FollowupDelaysDays: []int{3, 7, 14},
			ActionDelayFloor:   45 * time.Second,
			ReplyThrottle:      90 * time.Second,
			StaleAfterDays:     5,
		},
		Social: SocialConfig{
			APIKeyEnv: "UNIPILE_API_KEY",
		},
		LLM: LLMConfig{
			Providers: []LLMProviderConfig{{
				Name:      "openai",
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o",
				APIKeyEnv: "OPENAI_API_KEY",
			}},
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.RateLimiterState = ExpandPath(cfg.General.RateLimiterState)
	cfg.General.AvatarPatterns = ExpandPath(cfg.General.AvatarPatterns)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Workers.ActiveHourStart < 0 || c.Workers.ActiveHourStart > 23 ||
		c.Workers.ActiveHourEnd < 0 || c.Workers.ActiveHourEnd > 23 {
		return fmt.Errorf("active hours must be within 0-23")
	}
	if c.Workers.ActiveHourStart >= c.Workers.ActiveHourEnd {
		return fmt.Errorf("active window start %d must precede end %d",
			c.Workers.ActiveHourStart, c.Workers.ActiveHourEnd)
	}
	if _, err := time.LoadLocation(c.Workers.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Workers.Timezone, err)
	}
	if c.Workers.StalenessCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Workers.StalenessCron); err != nil {
			return fmt.Errorf("invalid staleness cron %q: %w", c.Workers.StalenessCron, err)
		}
	}
	if c.Workers.BatchSize <= 0 {
		c.Workers.BatchSize = 10
	}
	if c.Outreach.CutoffDays <= 0 {
		c.Outreach.CutoffDays = 30
	}
	if len(c.Outreach.FollowupDelaysDays) == 0 {
		c.Outreach.FollowupDelaysDays = []int{3, 7, 14}
	}
	if c.Outreach.ActionDelayFloor <= 0 {
		c.Outreach.ActionDelayFloor = 45 * time.Second
	}
	if c.Outreach.StaleAfterDays <= 0 {
		c.Outreach.StaleAfterDays = 5
	}
	return nil
}

// Location returns the configured timezone, UTC when unset or invalid
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Workers.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DailyLimit returns the configured base quota for an action type.
// Unknown send actions fall back to the first-contact limit.
func (c *Config) DailyLimit(action domain.ActionType) int {
	switch action {
	case domain.ActionSendFirstContact:
		return c.Quota.FirstContact
	case domain.ActionSendFollowupA1:
		return c.Quota.FollowupA1
	case domain.ActionSendFollowupA2:
		return c.Quota.FollowupA2
	case domain.ActionSendFollowupA3:
		return c.Quota.FollowupA3
	case domain.ActionSendFollowupB:
		return c.Quota.FollowupB
	case domain.ActionSendFollowupC:
		return c.Quota.FollowupC
	}
	return c.Quota.FirstContact
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "outreach-orchestrator", "config.toml")
}

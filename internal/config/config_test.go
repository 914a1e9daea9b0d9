package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Workers.ScanInterval != 2*time.Hour {
		t.Errorf("scan interval = %v, want 2h", cfg.Workers.ScanInterval)
	}
	if cfg.Workers.ActiveHourStart != 6 || cfg.Workers.ActiveHourEnd != 22 {
		t.Errorf("active window = %d-%d, want 6-22",
			cfg.Workers.ActiveHourStart, cfg.Workers.ActiveHourEnd)
	}
	if cfg.Workers.Timezone != "Europe/Paris" {
		t.Errorf("timezone = %q, want Europe/Paris", cfg.Workers.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Quota.FirstContact != 50 {
		t.Errorf("first_contact = %d, want default 50", cfg.Quota.FirstContact)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[workers]
scan_interval = "1h"
active_hour_start = 8
active_hour_end = 20

[quota]
first_contact = 25

[outreach]
followup_delays_days = [2, 5, 9]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers.ScanInterval != time.Hour {
		t.Errorf("scan interval = %v, want 1h", cfg.Workers.ScanInterval)
	}
	if cfg.Workers.ActiveHourStart != 8 || cfg.Workers.ActiveHourEnd != 20 {
		t.Errorf("active window = %d-%d, want 8-20",
			cfg.Workers.ActiveHourStart, cfg.Workers.ActiveHourEnd)
	}
	if cfg.Quota.FirstContact != 25 {
		t.Errorf("first_contact = %d, want 25", cfg.Quota.FirstContact)
	}
	if got := cfg.Outreach.FollowupDelaysDays; len(got) != 3 || got[0] != 2 || got[2] != 9 {
		t.Errorf("followup delays = %v, want [2 5 9]", got)
	}
	// untouched sections keep defaults
	if cfg.Quota.FollowupB != 20 {
		t.Errorf("followup_b = %d, want default 20", cfg.Quota.FollowupB)
	}
}

func TestValidateRejectsBadWindow(t *testing.T) {
	cfg := Default()
	cfg.Workers.ActiveHourStart = 22
	cfg.Workers.ActiveHourEnd = 6
	if err := cfg.Validate(); err == nil {
		t.Error("inverted window should fail validation")
	}

	cfg = Default()
	cfg.Workers.ActiveHourEnd = 25
	if err := cfg.Validate(); err == nil {
		t.Error("hour 25 should fail validation")
	}
}

func TestValidateRejectsBadCron(t *testing.T) {
	cfg := Default()
	cfg.Workers.StalenessCron = "not a cron"
	if err := cfg.Validate(); err == nil {
		t.Error("invalid cron should fail validation")
	}
}

func TestDailyLimit(t *testing.T) {
	cfg := Default()
	cases := []struct {
		action domain.ActionType
		want   int
	}{
		{domain.ActionSendFirstContact, 50},
		{domain.ActionSendFollowupA1, 30},
		{domain.ActionSendFollowupA3, 30},
		{domain.ActionSendFollowupB, 20},
		{domain.ActionSendFollowupC, 10},
	}
	for _, tc := range cases {
		if got := cfg.DailyLimit(tc.action); got != tc.want {
			t.Errorf("DailyLimit(%s) = %d, want %d", tc.action, got, tc.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/x.db"); got != filepath.Join(home, "x.db") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("ExpandPath should leave absolute paths alone, got %q", got)
	}
}

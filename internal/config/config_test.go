package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8760 {
		t.Errorf("expected default port 8760, got %d", cfg.Port)
	}
	if cfg.Strategy != "token" {
		t.Errorf("expected default strategy token, got %q", cfg.Strategy)
	}
	if cfg.GraphBaseURL == "" {
		t.Error("expected non-empty default graph base URL")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALBRIDGE_PORT", "9000")
	t.Setenv("CALBRIDGE_STRATEGY", "domscrape")
	t.Setenv("TAB_URL", "https://outlook.office.com/calendar/view/week")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.Strategy != "domscrape" {
		t.Errorf("expected strategy domscrape, got %q", cfg.Strategy)
	}
	if cfg.TabURL != "https://outlook.office.com/calendar/view/week" {
		t.Errorf("unexpected tab url %q", cfg.TabURL)
	}
}

func TestEnvIntFallbackOnGarbage(t *testing.T) {
	t.Setenv("CALBRIDGE_PORT", "not-a-number")

	cfg := Load()
	if cfg.Port != 8760 {
		t.Errorf("expected fallback port 8760, got %d", cfg.Port)
	}
}

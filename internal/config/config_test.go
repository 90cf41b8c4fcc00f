package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.ReportingCurrency != "GBP" {
		t.Errorf("expected default currency GBP, got %s", cfg.ReportingCurrency)
	}
	if cfg.EffectPollInterval != 5*time.Second {
		t.Errorf("expected default poll interval 5s, got %s", cfg.EffectPollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REPORTING_CURRENCY", "EUR")
	t.Setenv("EFFECT_BATCH_SIZE", "50")
	t.Setenv("EFFECT_POLL_INTERVAL", "250ms")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if cfg.ReportingCurrency != "EUR" {
		t.Errorf("expected currency override, got %s", cfg.ReportingCurrency)
	}
	if cfg.EffectBatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", cfg.EffectBatchSize)
	}
	if cfg.EffectPollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %s", cfg.EffectPollInterval)
	}
}

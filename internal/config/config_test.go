package config

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "Dev")
	t.Setenv("TYPING_TTL", "")
	t.Setenv("WS_AUTH_TIMEOUT", "3")
	t.Setenv("USER_CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.AppEnv != "development" || !cfg.IsDevelopment() {
		t.Errorf("expected development env, got %q", cfg.AppEnv)
	}
	if cfg.TypingTTL != 8*time.Second {
		t.Errorf("expected default typing ttl, got %s", cfg.TypingTTL)
	}
	if cfg.WSAuthTimeout != 3*time.Second {
		t.Errorf("expected 3s auth timeout, got %s", cfg.WSAuthTimeout)
	}
	if cfg.UserCacheTTL != 90*time.Second {
		t.Errorf("expected 90s cache ttl, got %s", cfg.UserCacheTTL)
	}
	if cfg.MessageRateBurst != 20 || cfg.MessageRatePerSecond != 10 {
		t.Errorf("unexpected rate defaults: %v/%d", cfg.MessageRatePerSecond, cfg.MessageRateBurst)
	}
}

func TestLoadConfigRejectsNonPositiveBuffer(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WS_SEND_BUFFER", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero send buffer")
	}
}

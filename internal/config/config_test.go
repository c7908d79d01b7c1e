package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl: %s", cfg.TokenTTL)
	}
	if cfg.OTPExpiration != 10*time.Minute {
		t.Fatalf("unexpected otp expiration: %s", cfg.OTPExpiration)
	}
	if cfg.OTPResendAfter != 60*time.Second {
		t.Fatalf("unexpected otp resend window: %s", cfg.OTPResendAfter)
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Fatalf("unexpected otp max attempts: %d", cfg.OTPMaxAttempts)
	}
}

func TestGetenvOverrides(t *testing.T) {
	t.Setenv("OTP_EXPIRATION", "5m")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	t.Setenv("DEVELOPMENT", "true")

	cfg := Load()
	if cfg.OTPExpiration != 5*time.Minute {
		t.Fatalf("expected override, got %s", cfg.OTPExpiration)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Fatalf("expected override, got %d", cfg.OTPMaxAttempts)
	}
	if !cfg.Development {
		t.Fatalf("expected development mode")
	}
}

func TestGetenvDurationSeconds(t *testing.T) {
	t.Setenv("OTP_RESEND_AFTER_SECONDS", "90")
	cfg := Load()
	if cfg.OTPResendAfter != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.OTPResendAfter)
	}
}

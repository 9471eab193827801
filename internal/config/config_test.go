package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("SESSION_FAILURE_POLICY", "")
	t.Setenv("SESSION_IDLE_MINUTES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.SessionFailurePolicy != FailurePolicyClosed {
		t.Fatalf("unexpected failure policy: %s", cfg.SessionFailurePolicy)
	}
	if cfg.SessionIdleTimeout().Minutes() != 30 {
		t.Fatalf("unexpected idle timeout: %v", cfg.SessionIdleTimeout())
	}
}

func TestLoadRejectsUnknownFailurePolicy(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("SESSION_FAILURE_POLICY", "open")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown failure policy")
	}
}

func TestValidateReleaseRequiresSecrets(t *testing.T) {
	cfg := &Config{
		GinMode:               "release",
		AppUsername:           "admin",
		AppPasswordHash:       "hash",
		SessionRedisURL:       "redis://127.0.0.1:6379/0",
		SessionMaxLifetimeMin: 60,
		SessionIdleMin:        10,
		SessionFailurePolicy:  FailurePolicyClosed,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when SESSION_SECRET is missing")
	}

	cfg.SessionSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("AUDIT_ENABLED", "true")
	if !getEnvAsBool("AUDIT_ENABLED", false) {
		t.Fatal("expected true")
	}
	t.Setenv("AUDIT_ENABLED", "nope")
	if getEnvAsBool("AUDIT_ENABLED", false) {
		t.Fatal("expected default for unparsable value")
	}
}

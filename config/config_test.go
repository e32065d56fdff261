package config

import (
	"errors"
	"testing"
	"time"

	"keychain-agent/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KEYCHAIN_ID", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeychainID != 1 {
		t.Errorf("want keychain 1, got %d", cfg.KeychainID)
	}
	if cfg.PageLimit != 5 {
		t.Errorf("want page limit 5, got %d", cfg.PageLimit)
	}
	if cfg.GasPerKeyRequest != 70000 {
		t.Errorf("want gas 70000, got %d", cfg.GasPerKeyRequest)
	}
	if cfg.FeeAmount != "400000" || cfg.FeeDenom != "uward" {
		t.Errorf("unexpected fee %s%s", cfg.FeeAmount, cfg.FeeDenom)
	}
	if cfg.LedgerTimeout != 30*time.Second || cfg.RunInterval != 10*time.Second || cfg.LockTTL != 2*time.Minute {
		t.Errorf("unexpected durations: %+v", cfg)
	}
	if cfg.KeyGenerator != KeyGeneratorStub {
		t.Errorf("want stub generator, got %s", cfg.KeyGenerator)
	}
	if cfg.OtelEnabled {
		t.Error("tracing must be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KEYCHAIN_ID", "42")
	t.Setenv("PAGE_LIMIT", "20")
	t.Setenv("GAS_PER_KEY_REQUEST", "100000")
	t.Setenv("RUN_INTERVAL", "1m")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeychainID != 42 || cfg.PageLimit != 20 || cfg.GasPerKeyRequest != 100000 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.RunInterval != time.Minute || !cfg.OtelEnabled || cfg.OtelSamplingRate != 0.25 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"KEYCHAIN_ID", "abc"},
		{"KEYCHAIN_ID", "-1"},
		{"PAGE_LIMIT", "five"},
		{"GAS_PER_KEY_REQUEST", "1.5"},
		{"LEDGER_TIMEOUT", "30"},
		{"RUN_INTERVAL", "soon"},
		{"LOCK_TTL", "forever"},
		{"OTEL_ENABLED", "maybe"},
		{"OTEL_SAMPLING_RATE", "half"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		KeychainID:       1,
		PageLimit:        5,
		GasPerKeyRequest: 70000,
		FeeAmount:        "400000",
		FeeDenom:         "uward",
		LedgerAPIURL:     "http://localhost:1317",
		SignerAPIURL:     "http://localhost:8090",
		LedgerTimeout:    30 * time.Second,
		RunInterval:      10 * time.Second,
		KeyGenerator:     KeyGeneratorStub,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing keychain", func(c *Config) { c.KeychainID = 0 }},
		{"zero page limit", func(c *Config) { c.PageLimit = 0 }},
		{"zero gas", func(c *Config) { c.GasPerKeyRequest = 0 }},
		{"missing fee", func(c *Config) { c.FeeAmount = "" }},
		{"missing ledger url", func(c *Config) { c.LedgerAPIURL = "" }},
		{"missing signer url", func(c *Config) { c.SignerAPIURL = "" }},
		{"kms without database", func(c *Config) { c.KeyGenerator = KeyGeneratorKMS; c.KMSKeyName = "k" }},
		{"kms without key name", func(c *Config) { c.KeyGenerator = KeyGeneratorKMS; c.DatabaseURL = "dsn" }},
		{"unknown generator", func(c *Config) { c.KeyGenerator = "hsm" }},
		{"zero run interval", func(c *Config) { c.RunInterval = 0 }},
		{"negative run interval", func(c *Config) { c.RunInterval = -time.Second }},
		{"negative ledger timeout", func(c *Config) { c.LedgerTimeout = -time.Second }},
		{"zero lock ttl", func(c *Config) { c.RedisURL = "redis://localhost:6379/0"; c.LockTTL = 0 }},
		{"lock ttl shorter than a run", func(c *Config) { c.RedisURL = "redis://localhost:6379/0"; c.LockTTL = time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate_KMS(t *testing.T) {
	cfg := validConfig()
	cfg.KeyGenerator = KeyGeneratorKMS
	cfg.DatabaseURL = "dsn"
	cfg.KMSKeyName = "projects/p/locations/l/keyRings/r/cryptoKeys/k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RejectsNonPositiveDurations(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RUN_INTERVAL", "0s"},
		{"RUN_INTERVAL", "-10s"},
		{"LEDGER_TIMEOUT", "-1s"},
		{"LOCK_TTL", "0s"},
		{"LOCK_TTL", "-1m"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("KEYCHAIN_ID", "1")
			t.Setenv("LEDGER_API_URL", "http://localhost:1317")
			t.Setenv("SIGNER_API_URL", "http://localhost:8090")
			t.Setenv("REDIS_URL", "redis://localhost:6379/0")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected load error: %v", err)
			}
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate_LockTTL(t *testing.T) {
	cfg := validConfig()
	cfg.RedisURL = "redis://localhost:6379/0"
	cfg.LockTTL = 2 * time.Minute
	if err := cfg.Validate(); err != nil {
		t.Errorf("default LOCK_TTL must cover the default LEDGER_TIMEOUT: %v", err)
	}

	// タイムアウト無しの場合は実行時間を見積もれないため下限を課さない
	cfg.LedgerTimeout = 0
	cfg.LockTTL = time.Second
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

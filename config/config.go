// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"keychain-agent/internal/domain"
)

// Config はアプリケーション設定を表す。
type Config struct {
	// キーチェーン
	KeychainID       uint64
	PageLimit        int
	GasPerKeyRequest uint64
	FeeAmount        string
	FeeDenom         string

	// 台帳・署名ゲートウェイ
	LedgerAPIURL  string
	SignerAPIURL  string
	SignerAddress string
	LedgerTimeout time.Duration

	// 鍵生成
	KeyGenerator   string
	DatabaseDriver string
	DatabaseURL    string
	KMSKeyName     string

	// 実行
	RedisURL    string
	LockTTL     time.Duration
	RunInterval time.Duration
	Port        string
	LogLevel    string

	// OpenTelemetry
	GoogleCloudProject string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

const (
	// KeyGeneratorStub は固定バイト列を返す生成器。
	KeyGeneratorStub = "stub"
	// KeyGeneratorKMS はKMSで秘密鍵を暗号化して保管する生成器。
	KeyGeneratorKMS = "kms"
)

// Load は環境変数から設定を読み込む。
// 数値のパースに失敗した場合は ErrInvalidConfig を返す。
func Load() (*Config, error) {
	cfg := &Config{
		FeeAmount:          getEnv("FEE_AMOUNT", "400000"),
		FeeDenom:           getEnv("FEE_DENOM", "uward"),
		LedgerAPIURL:       os.Getenv("LEDGER_API_URL"),
		SignerAPIURL:       os.Getenv("SIGNER_API_URL"),
		SignerAddress:      os.Getenv("SIGNER_ADDRESS"),
		KeyGenerator:       getEnv("KEY_GENERATOR", KeyGeneratorStub),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		RedisURL:           os.Getenv("REDIS_URL"),
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "keychain-agent"),
	}

	var err error
	if cfg.KeychainID, err = parseUint("KEYCHAIN_ID", "0"); err != nil {
		return nil, err
	}
	if cfg.GasPerKeyRequest, err = parseUint("GAS_PER_KEY_REQUEST", "70000"); err != nil {
		return nil, err
	}
	pageLimit, err := strconv.Atoi(getEnv("PAGE_LIMIT", "5"))
	if err != nil {
		return nil, fmt.Errorf("%w: PAGE_LIMIT: %v", domain.ErrInvalidConfig, err)
	}
	cfg.PageLimit = pageLimit
	if cfg.LedgerTimeout, err = parseDuration("LEDGER_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = parseDuration("RUN_INTERVAL", "10s"); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDuration("LOCK_TTL", "2m"); err != nil {
		return nil, err
	}
	if cfg.OtelEnabled, err = strconv.ParseBool(getEnv("OTEL_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("%w: OTEL_ENABLED: %v", domain.ErrInvalidConfig, err)
	}
	if cfg.OtelSamplingRate, err = strconv.ParseFloat(getEnv("OTEL_SAMPLING_RATE", "1.0"), 64); err != nil {
		return nil, fmt.Errorf("%w: OTEL_SAMPLING_RATE: %v", domain.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate は台帳への送信に必要な設定が揃っているか確認する。
func (c *Config) Validate() error {
	if c.KeychainID == 0 {
		return fmt.Errorf("%w: KEYCHAIN_ID is required", domain.ErrInvalidConfig)
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("%w: PAGE_LIMIT must be positive", domain.ErrInvalidConfig)
	}
	if c.GasPerKeyRequest == 0 {
		return fmt.Errorf("%w: GAS_PER_KEY_REQUEST must be positive", domain.ErrInvalidConfig)
	}
	if c.FeeAmount == "" || c.FeeDenom == "" {
		return fmt.Errorf("%w: FEE_AMOUNT and FEE_DENOM are required", domain.ErrInvalidConfig)
	}
	if c.LedgerAPIURL == "" {
		return fmt.Errorf("%w: LEDGER_API_URL is required", domain.ErrInvalidConfig)
	}
	if c.SignerAPIURL == "" {
		return fmt.Errorf("%w: SIGNER_API_URL is required", domain.ErrInvalidConfig)
	}
	if c.RunInterval <= 0 {
		return fmt.Errorf("%w: RUN_INTERVAL must be positive", domain.ErrInvalidConfig)
	}
	if c.LedgerTimeout < 0 {
		return fmt.Errorf("%w: LEDGER_TIMEOUT must not be negative", domain.ErrInvalidConfig)
	}
	if c.RedisURL != "" {
		if c.LockTTL <= 0 {
			return fmt.Errorf("%w: LOCK_TTL must be positive", domain.ErrInvalidConfig)
		}
		if c.LedgerTimeout > 0 && c.LockTTL < minLockTTL(c.LedgerTimeout) {
			return fmt.Errorf("%w: LOCK_TTL must be at least %s for LEDGER_TIMEOUT %s", domain.ErrInvalidConfig, minLockTTL(c.LedgerTimeout), c.LedgerTimeout)
		}
	}
	switch c.KeyGenerator {
	case KeyGeneratorStub:
	case KeyGeneratorKMS:
		if c.DatabaseURL == "" || c.KMSKeyName == "" {
			return fmt.Errorf("%w: DATABASE_URL and KMS_KEY_NAME are required for the kms key generator", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown KEY_GENERATOR %q", domain.ErrInvalidConfig, c.KeyGenerator)
	}
	return nil
}

// ledgerCallsPerRun は1回の実行で行う台帳への呼び出し回数の上限（一覧取得、アドレス解決、送信）。
const ledgerCallsPerRun = 3

// minLockTTL は実行中にロックが失効しないための最小TTL。台帳呼び出しの上限に鍵生成の1回分を加える。
func minLockTTL(ledgerTimeout time.Duration) time.Duration {
	return ledgerTimeout * (ledgerCallsPerRun + 1)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseUint(key, defaultVal string) (uint64, error) {
	v, err := strconv.ParseUint(getEnv(key, defaultVal), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, key, err)
	}
	return v, nil
}

func parseDuration(key, defaultVal string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultVal))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, key, err)
	}
	return d, nil
}

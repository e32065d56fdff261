// Package app は設定からアプリケーションの依存関係を組み立てる。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"keychain-agent/config"
	"keychain-agent/internal/domain"
	"keychain-agent/internal/infra"
	"keychain-agent/internal/repository"
	"keychain-agent/internal/usecase"
)

// App は組み立て済みのサービス群。
type App struct {
	Fulfillment *usecase.FulfillmentService
	// Keys は KEY_GENERATOR=kms の場合のみ設定される。
	Keys    *usecase.KeyService
	Metrics *infra.Metrics

	closers []func() error
}

// New は設定に従ってサービスを組み立てる。regがnilの場合はメトリクスを記録しない。
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{}
	ledger := infra.NewLedgerClient(cfg.LedgerAPIURL, cfg.SignerAPIURL, cfg.LedgerTimeout)

	var signer usecase.Signer = ledger
	if cfg.SignerAddress != "" {
		signer = infra.NewStaticSigner(cfg.SignerAddress)
	}

	generator, err := a.newKeyGenerator(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []usecase.FulfillmentOption
	if cfg.RedisURL != "" {
		locker, err := infra.NewRedisLocker(ctx, cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, locker.Close)
		opts = append(opts, usecase.WithRunLocker(locker))
	}
	if reg != nil {
		a.Metrics = infra.NewMetrics(reg)
		opts = append(opts, usecase.WithRunMetrics(a.Metrics))
	}

	a.Fulfillment, err = usecase.NewFulfillmentService(usecase.FulfillmentConfig{
		KeychainID:    cfg.KeychainID,
		PageLimit:     cfg.PageLimit,
		PerRequestGas: cfg.GasPerKeyRequest,
		FlatFee:       []domain.Coin{{Denom: cfg.FeeDenom, Amount: cfg.FeeAmount}},
	}, ledger, signer, generator, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) newKeyGenerator(ctx context.Context, cfg *config.Config) (usecase.KeyGenerator, error) {
	if cfg.KeyGenerator != config.KeyGeneratorKMS {
		slog.WarnContext(ctx, "using stub key generator, public keys are not usable",
			"operation", "init",
			"keychain_id", cfg.KeychainID,
		)
		return usecase.StubKeyGenerator{}, nil
	}

	keys, err := OpenKeyStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Keys = keys.Service
	a.closers = append(a.closers, keys.Close)
	return keys.Service, nil
}

// KeyStore はDBとKMSに接続したKeyService。
type KeyStore struct {
	Service *usecase.KeyService
	closers []func() error
}

// OpenKeyStore はDATABASE_URLとKMS_KEY_NAMEに接続したKeyServiceを生成する。
func OpenKeyStore(ctx context.Context, cfg *config.Config) (*KeyStore, error) {
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to init KMS client: %w", err)
	}

	return &KeyStore{
		Service: usecase.NewKeyService(repository.NewKeyRepository(db), kmsClient),
		closers: []func() error{kmsClient.Close, sqlDB.Close},
	}, nil
}

// Close はDBとKMSの接続を閉じる。
func (s *KeyStore) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Close は保持している接続を閉じる。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

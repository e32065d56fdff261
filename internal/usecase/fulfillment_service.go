package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"keychain-agent/internal/domain"
	"keychain-agent/internal/middleware"
)

var tracer = otel.Tracer("keychain-agent/internal/usecase")

// LedgerClient は台帳の読み書きのインターフェース。
type LedgerClient interface {
	// ListPendingKeyRequests は指定キーチェーン宛の未処理リクエストを最大limit件取得する。
	ListPendingKeyRequests(ctx context.Context, keychainID uint64, limit int) ([]domain.KeyRequest, error)
	// SignAndBroadcast は操作群を1つのトランザクションとして署名・送信する。
	SignAndBroadcast(ctx context.Context, signer string, ops []domain.UpdateKeyRequestOp, fee domain.FeeBudget) (*domain.TxResult, error)
}

// Signer は送信者アカウントのアドレスを提供する。
type Signer interface {
	Address(ctx context.Context) (string, error)
}

// RunLocker はキーチェーン単位の実行ロックを提供する。
type RunLocker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// RunMetrics は実行結果を記録する。
type RunMetrics interface {
	ObserveRun(outcome string, fulfilled int, elapsed time.Duration)
}

// FulfillmentConfig は1回の実行に必要なパラメータ。
type FulfillmentConfig struct {
	KeychainID    uint64
	PageLimit     int
	PerRequestGas uint64
	FlatFee       []domain.Coin
}

// Validate は設定値を検証する。
func (c FulfillmentConfig) Validate() error {
	if c.KeychainID == 0 {
		return fmt.Errorf("%w: keychain id is required", domain.ErrInvalidConfig)
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("%w: page limit must be positive, got %d", domain.ErrInvalidConfig, c.PageLimit)
	}
	if c.PerRequestGas == 0 {
		return fmt.Errorf("%w: per request gas is required", domain.ErrInvalidConfig)
	}
	if len(c.FlatFee) == 0 {
		return fmt.Errorf("%w: flat fee is required", domain.ErrInvalidConfig)
	}
	return nil
}

// FulfillmentOption はFulfillmentServiceの任意設定。
type FulfillmentOption func(*FulfillmentService)

// WithRunLocker は実行ロックを設定する。
func WithRunLocker(l RunLocker) FulfillmentOption {
	return func(s *FulfillmentService) { s.locker = l }
}

// WithRunMetrics はメトリクスの記録先を設定する。
func WithRunMetrics(m RunMetrics) FulfillmentOption {
	return func(s *FulfillmentService) { s.metrics = m }
}

// FulfillmentService は未処理の鍵生成リクエストをまとめて処理する。
type FulfillmentService struct {
	cfg       FulfillmentConfig
	ledger    LedgerClient
	signer    Signer
	generator KeyGenerator
	locker    RunLocker
	metrics   RunMetrics
}

// NewFulfillmentService は新しいFulfillmentServiceを生成する。
func NewFulfillmentService(cfg FulfillmentConfig, ledger LedgerClient, signer Signer, generator KeyGenerator, opts ...FulfillmentOption) (*FulfillmentService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &FulfillmentService{
		cfg:       cfg,
		ledger:    ledger,
		signer:    signer,
		generator: generator,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce は未処理リクエストを1ページ分取得し、鍵を生成して1つのトランザクションで完了を報告する。
// 台帳が拒否した場合は Failed の結果と ErrLedgerRejected を返す。
func (s *FulfillmentService) RunOnce(ctx context.Context) (*domain.RunOutcome, error) {
	ctx, span := tracer.Start(ctx, "FulfillmentService.RunOnce")
	defer span.End()
	span.SetAttributes(attribute.String("keychain.id", strconv.FormatUint(s.cfg.KeychainID, 10)))

	start := time.Now()
	outcome, err := s.runLocked(ctx)

	label := "error"
	fulfilled := 0
	if outcome != nil {
		label = string(outcome.Kind)
		if outcome.Kind == domain.RunOutcomeSuccess {
			fulfilled = len(outcome.Fulfilled)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(label, fulfilled, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("run.outcome", label))
	return outcome, err
}

func (s *FulfillmentService) runLocked(ctx context.Context) (*domain.RunOutcome, error) {
	if s.locker == nil {
		return s.run(ctx)
	}

	release, err := s.locker.Acquire(ctx, runLockKey(s.cfg.KeychainID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release run lock",
				"operation", "run_once",
				"keychain_id", s.cfg.KeychainID,
				"error", err,
			)
		}
	}()
	return s.run(ctx)
}

func runLockKey(keychainID uint64) string {
	return "keychain-agent:fulfillment:" + strconv.FormatUint(keychainID, 10)
}

func (s *FulfillmentService) run(ctx context.Context) (*domain.RunOutcome, error) {
	requests, err := s.ledger.ListPendingKeyRequests(ctx, s.cfg.KeychainID, s.cfg.PageLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerRead, err)
	}
	if len(requests) == 0 {
		slog.DebugContext(ctx, "no pending key requests",
			"operation", "run_once",
			"keychain_id", s.cfg.KeychainID,
		)
		return &domain.RunOutcome{Kind: domain.RunOutcomeNoWork}, nil
	}
	if err := s.checkRequests(requests); err != nil {
		return nil, err
	}

	address, err := s.signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigner, err)
	}
	slog.InfoContext(ctx, "fulfilling key requests",
		"operation", "run_once",
		"keychain_id", s.cfg.KeychainID,
		"request_count", len(requests),
		"signer", address,
	)

	batch, err := s.generateAll(ctx, requests)
	if err != nil {
		return nil, err
	}
	if err := verifyBatch(requests, batch); err != nil {
		return nil, err
	}

	ops := buildOps(address, batch)
	fee, err := EstimateFee(s.cfg.FlatFee, s.cfg.PerRequestGas, len(ops))
	if err != nil {
		return nil, err
	}

	// 送信前にキャンセルされた場合は何も送らない
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before submission: %w", err)
	}

	// 送信開始後のキャンセルはトランザクションに影響しない
	res, err := s.ledger.SignAndBroadcast(context.WithoutCancel(ctx), address, ops, fee)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerSubmit, err)
	}
	return s.interpret(ctx, batch, res)
}

// checkRequests は取得したリクエストが処理対象として妥当か確認する。
func (s *FulfillmentService) checkRequests(requests []domain.KeyRequest) error {
	seen := make(map[uint64]struct{}, len(requests))
	for _, req := range requests {
		if !req.IsPending() {
			return fmt.Errorf("%w: request %d has status %s", domain.ErrInvalidKeyRequest, req.ID, req.Status)
		}
		if req.KeychainID != s.cfg.KeychainID {
			return fmt.Errorf("%w: request %d belongs to keychain %d", domain.ErrInvalidKeyRequest, req.ID, req.KeychainID)
		}
		if _, dup := seen[req.ID]; dup {
			return fmt.Errorf("%w: request %d listed twice", domain.ErrInvalidKeyRequest, req.ID)
		}
		seen[req.ID] = struct{}{}
	}
	return nil
}

// generateAll は鍵を並行に生成し、取得順に並べたバッチを返す。
// 1件でも失敗した場合はバッチを返さない。
func (s *FulfillmentService) generateAll(ctx context.Context, requests []domain.KeyRequest) (domain.Batch, error) {
	batch := make(domain.Batch, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageLimit)
	for i, req := range requests {
		g.Go(func() error {
			pub, err := s.generator.Generate(gctx, req)
			if err != nil {
				return fmt.Errorf("%w: request %d: %w", domain.ErrGeneration, req.ID, err)
			}
			if len(pub) == 0 {
				return fmt.Errorf("%w: request %d: empty public key", domain.ErrGeneration, req.ID)
			}
			batch[i] = domain.FulfillmentResult{RequestID: req.ID, PublicKey: pub}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run cancelled before submission: %w", ctxErr)
		}
		slog.ErrorContext(ctx, "key generation failed",
			"operation", "run_once",
			"keychain_id", s.cfg.KeychainID,
			"error", err,
		)
		return nil, err
	}
	return batch, nil
}

// verifyBatch はバッチとリクエストが取得順に1対1で対応していることを確認する。
func verifyBatch(requests []domain.KeyRequest, batch domain.Batch) error {
	if len(batch) != len(requests) {
		return fmt.Errorf("%w: %d results for %d requests", domain.ErrRequestIDMismatch, len(batch), len(requests))
	}
	for i, res := range batch {
		if res.RequestID != requests[i].ID {
			return fmt.Errorf("%w: position %d has request %d, want %d", domain.ErrRequestIDMismatch, i, res.RequestID, requests[i].ID)
		}
	}
	return nil
}

func buildOps(creator string, batch domain.Batch) []domain.UpdateKeyRequestOp {
	ops := make([]domain.UpdateKeyRequestOp, len(batch))
	for i, res := range batch {
		ops[i] = domain.UpdateKeyRequestOp{
			Creator:   creator,
			RequestID: res.RequestID,
			Status:    domain.KeyRequestStatusFulfilled,
			PublicKey: res.PublicKey,
		}
	}
	return ops
}

// interpret は送信結果を実行結果に変換する。
func (s *FulfillmentService) interpret(ctx context.Context, batch domain.Batch, res *domain.TxResult) (*domain.RunOutcome, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: empty broadcast result", domain.ErrLedgerSubmit)
	}
	if !res.OK() {
		slog.ErrorContext(ctx, "transaction rejected",
			"operation", "run_once",
			"keychain_id", s.cfg.KeychainID,
			"code", res.Code,
			"tx_hash", res.TxHash,
			"raw_log", res.RawLog,
		)
		return &domain.RunOutcome{Kind: domain.RunOutcomeFailed, TxHash: res.TxHash, Result: res},
			&domain.RejectedError{Result: res}
	}

	ids := batch.RequestIDs()
	for _, id := range ids {
		middleware.WriteAuditLog(ctx, "FULFILL_KEY_REQUEST", s.cfg.KeychainID, id, "SUCCESS")
	}
	slog.InfoContext(ctx, "transaction success",
		"operation", "run_once",
		"keychain_id", s.cfg.KeychainID,
		"request_count", len(ids),
		"tx_hash", res.TxHash,
	)
	return &domain.RunOutcome{
		Kind:      domain.RunOutcomeSuccess,
		TxHash:    res.TxHash,
		Fulfilled: ids,
		Result:    res,
	}, nil
}

// IsRetryable は次回の実行で再試行してよいエラーかどうかを返す。
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrLedgerRead),
		errors.Is(err, domain.ErrGeneration),
		errors.Is(err, domain.ErrLedgerSubmit),
		errors.Is(err, domain.ErrLedgerRejected),
		errors.Is(err, domain.ErrSigner),
		errors.Is(err, domain.ErrRunInProgress):
		return true
	}
	return false
}

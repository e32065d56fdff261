package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keychain-agent/internal/domain"
)

// Runner は1回分のフルフィルメントを実行する。
type Runner interface {
	RunOnce(ctx context.Context) (*domain.RunOutcome, error)
}

// Scheduler はRunnerを一定間隔で繰り返し実行する。
// 同一プロセス内で実行が重なることはない。
type Scheduler struct {
	runner   Runner
	interval time.Duration
	mu       sync.Mutex
}

// NewScheduler は新しいSchedulerを生成する。
func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// Trigger は1回実行する。実行中の場合は ErrRunInProgress を返す。
func (s *Scheduler) Trigger(ctx context.Context) (*domain.RunOutcome, error) {
	if !s.mu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer s.mu.Unlock()
	return s.runner.RunOnce(ctx)
}

// Run はctxがキャンセルされるまで定期実行する。
// 失敗は記録するだけで、次の周期で再試行する。
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: run interval must be positive, got %s", domain.ErrInvalidConfig, s.interval)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	outcome, err := s.Trigger(ctx)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		slog.DebugContext(ctx, "skipping run, previous run still in progress", "operation", "scheduler")
	case err != nil:
		slog.ErrorContext(ctx, "fulfillment run failed",
			"operation", "scheduler",
			"retryable", IsRetryable(err),
			"error", err,
		)
	case outcome.Kind == domain.RunOutcomeSuccess:
		slog.InfoContext(ctx, "fulfillment run completed",
			"operation", "scheduler",
			"tx_hash", outcome.TxHash,
			"request_count", len(outcome.Fulfilled),
		)
	}
}

// Package main はキーチェーンエージェントのデーモンのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"keychain-agent/config"
	"keychain-agent/internal/app"
	"keychain-agent/internal/handler"
	"keychain-agent/internal/infra"
	"keychain-agent/internal/usecase"
)

const version = "1.0.0"

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run はデーモンを起動し、シグナルを受けるまでブロックする。
// 終了時は送信中の実行を待ってから各接続を閉じる。
func run() error {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(os.Stdout, cfg)

	// DI
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("failed to init application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close application", "error", err)
		}
	}()

	scheduler := usecase.NewScheduler(a.Fulfillment, cfg.RunInterval)
	var keys *handler.KeyHandler
	if a.Keys != nil {
		keys = handler.NewKeyHandler(a.Keys, cfg.KeychainID)
	}
	router := handler.NewRouter(keys, handler.NewRunHandler(scheduler), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "keychain-agent"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	schedulerErr := make(chan error, 1)
	go func() {
		slog.Info("starting scheduler",
			"keychain_id", cfg.KeychainID,
			"interval", cfg.RunInterval.String(),
		)
		err := scheduler.Run(ctx)
		if err != nil {
			stop()
		}
		schedulerErr <- err
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "version", version)
	serveErr := server.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	// 送信中の実行は完了まで待つ
	stop()
	if err := errors.Join(serveErr, <-schedulerErr); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

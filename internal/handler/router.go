package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"keychain-agent/internal/middleware"
)

// NewRouter はルーターを生成する。
// keys が nil の場合（スタブ生成器）は鍵参照APIを公開しない。
func NewRouter(keys *KeyHandler, runs *RunHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// ルート定義
	r.Get("/healthz", Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", runs.CreateRun)
		if keys != nil {
			r.Get("/keys", keys.ListKeys)
			r.Get("/keys/{request_id}", keys.GetKey)
		}
	})

	return r
}

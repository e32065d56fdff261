package usecase

import (
	"context"

	"keychain-agent/internal/domain"
)

// KeyGenerator はリクエストIDに対応する鍵を生成し、公開鍵を返す。
// 同じリクエストIDで再度呼ばれた場合、同じ秘密鍵を後から取り出せなければならない。
type KeyGenerator interface {
	Generate(ctx context.Context, req domain.KeyRequest) ([]byte, error)
}

var stubPublicKey = []byte{0, 1, 2, 3}

// StubKeyGenerator は固定の公開鍵を返す開発用の生成器。
type StubKeyGenerator struct{}

// Generate は固定バイト列を返す。
func (StubKeyGenerator) Generate(ctx context.Context, req domain.KeyRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pub := make([]byte, len(stubPublicKey))
	copy(pub, stubPublicKey)
	return pub, nil
}

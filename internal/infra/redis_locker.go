package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keychain-agent/internal/domain"
)

// releaseScript は自分が取得したロックのみを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NXによるキーチェーン単位の実行ロック。
// 複数のプロセスが同じキーチェーンを処理する場合に実行の重複を防ぐ。
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker はREDIS_URLに接続するRedisLockerを生成する。
func NewRedisLocker(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return newRedisLocker(client, ttl), nil
}

func newRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire はロックを取得し、解放関数を返す。
// 他のプロセスが保持中の場合は ErrRunInProgress を返す。
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrRunInProgress
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("releasing run lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// Close はRedisクライアントを閉じる。
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

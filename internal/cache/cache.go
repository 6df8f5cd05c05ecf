package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш байтов. Промах или ошибка кэша не фатальны:
// авторитетные данные всегда в Postgres.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

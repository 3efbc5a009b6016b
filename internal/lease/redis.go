package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "order_sync:lease:"

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Redis is a Locker shared by every instance pointing at the same server.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger.With("component", "lease"),
	}
}

// Acquire takes key with SET NX PX. A held key yields ErrSyncInProgress.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	r.logger.Debug("lease acquired", "key", key, "ttl", ttl)

	return &Lease{
		Key:   key,
		Token: token,
		release: func(ctx context.Context) error {
			n, err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
			if err != nil {
				return fmt.Errorf("release lease %s: %w", key, err)
			}
			if n == 0 {
				r.logger.Warn("lease expired before release", "key", key)
			}
			return nil
		},
	}, nil
}

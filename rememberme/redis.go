package rememberme

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/openlettings/auth-gateway/internal/autherr"
)

var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "rememberme:"

// RedisStore persists the flags in Redis so they survive gateway restarts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (bool, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return v == "1", nil
}

func (s *RedisStore) Set(ctx context.Context, userID string, remember bool) error {
	v := "0"
	if remember {
		v = "1"
	}
	if err := s.client.Set(ctx, redisKeyPrefix+userID, v, 0).Err(); err != nil {
		return errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+userID).Err(); err != nil {
		return errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

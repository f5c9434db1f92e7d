package hosted

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/openlettings/auth-gateway/internal/autherr"
)

// TokenStore persists the provider refresh token between gateway runs so a
// restart can recover the session.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, refreshToken string) error
	Clear(ctx context.Context) error
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// MemoryTokenStore keeps the refresh token in process memory only.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = refreshToken
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

var _ TokenStore = (*RedisTokenStore)(nil)

const redisTokenKey = "authgw:refresh_token"

// RedisTokenStore persists the refresh token in Redis.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Load(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, redisTokenKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return v, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, refreshToken string) error {
	if err := s.client.Set(ctx, redisTokenKey, refreshToken, 0).Err(); err != nil {
		return errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, redisTokenKey).Err(); err != nil {
		return errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return nil
}

package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pkgredis "github.com/chameleon-ai/chameleon/pkg/redis"
)

// Store is the key/value backend behind ResponseCache.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Count(ctx context.Context, prefix string) (int64, error)
	Name() string
}

// RedisStore shares cached responses between replicas.
type RedisStore struct {
	client *pkgredis.Client
}

func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	return s.client.FlushByPattern(ctx, prefix+"*")
}

func (s *RedisStore) Count(ctx context.Context, prefix string) (int64, error) {
	return s.client.CountByPattern(ctx, prefix+"*")
}

// LocalStore keeps responses in process memory. It is used when Redis is
// disabled or unreachable.
type LocalStore struct {
	c *gocache.Cache
}

func NewLocalStore(defaultTTL, cleanupInterval time.Duration) *LocalStore {
	return &LocalStore{c: gocache.New(defaultTTL, cleanupInterval)}
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", false, nil
	}
	str, ok := v.(string)
	return str, ok, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.c.Set(key, value, ttl)
	return nil
}

func (s *LocalStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			s.c.Delete(key)
			n++
		}
	}
	return n, nil
}

func (s *LocalStore) Count(_ context.Context, prefix string) (int64, error) {
	var n int64
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n, nil
}

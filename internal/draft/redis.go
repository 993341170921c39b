package draft

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore trzyma szkice w Redisie z TTL odświeżanym przy każdym zapisie.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, userID, dataset string) (*Snapshot, error) {
	b, err := r.client.Get(ctx, key(userID, dataset)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(b), nil
}

func (r *RedisStore) Save(ctx context.Context, userID string, s *Snapshot) error {
	b, err := encode(s, time.Now().UTC())
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(userID, s.Dataset), b, r.ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context, userID, dataset string) error {
	return r.client.Del(ctx, key(userID, dataset)).Err()
}

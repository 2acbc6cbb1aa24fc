package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/santelle/santelle/internal/domain"
)

const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the
// connection with PING.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisSnapshotRepo keeps cached session snapshots in Redis with a TTL.
type RedisSnapshotRepo struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisSnapshotRepo returns a redis-backed SnapshotRepo. A zero ttl keeps
// entries until deleted.
func NewRedisSnapshotRepo(client redis.Cmdable, ttl time.Duration) *RedisSnapshotRepo {
	return &RedisSnapshotRepo{client: client, ttl: ttl}
}

func snapshotKey(actor string) string {
	return fmt.Sprintf("santelle:session_cache:%s", actor)
}

func (r *RedisSnapshotRepo) Load(ctx context.Context, actor string) (*domain.SessionSnapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKey(actor)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session snapshot: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("loading session snapshot: %w", err)
	}
	var s domain.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding session snapshot: %w", err)
	}
	return &s, nil
}

func (r *RedisSnapshotRepo) Save(ctx context.Context, actor string, s *domain.SessionSnapshot) error {
	if s == nil {
		return r.Delete(ctx, actor)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(actor), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepo) Delete(ctx context.Context, actor string) error {
	if err := r.client.Del(ctx, snapshotKey(actor)).Err(); err != nil {
		return fmt.Errorf("deleting session snapshot: %w", err)
	}
	return nil
}

package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sideline-chat/sideline/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// redisStore implements Store using Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

// Redis key pattern:
// presence:user:{user_id}   STRING<"AVAILABLE"|"BUSY">  - no TTL, sticky

func userStatusKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

func (s *redisStore) Get(ctx context.Context, userID string) (domain.Status, error) {
	val, err := s.client.Get(ctx, userStatusKey(userID)).Result()
	if err == redis.Nil {
		return domain.StatusAvailable, nil
	}
	if err != nil {
		return domain.StatusAvailable, err
	}

	status := domain.Status(val)
	if !status.Valid() {
		return domain.StatusAvailable, nil
	}
	return status, nil
}

func (s *redisStore) Set(ctx context.Context, userID string, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid presence status: %q", status)
	}
	return s.client.Set(ctx, userStatusKey(userID), string(status), 0).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

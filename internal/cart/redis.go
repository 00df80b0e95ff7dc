package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/pickle-storefront/internal/models"
)

// RedisStore keeps each bag as a JSON document that expires after ttl of
// inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, bagKey string) ([]models.CartLine, error) {
	data, err := s.client.Get(ctx, redisKey(bagKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart bag %s: %w", bagKey, err)
	}

	var lines []models.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart bag %s: %w", bagKey, err)
	}
	return lines, nil
}

func (s *RedisStore) Save(ctx context.Context, bagKey string, lines []models.CartLine) error {
	if len(lines) == 0 {
		return s.Clear(ctx, bagKey)
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart bag %s: %w", bagKey, err)
	}

	if err := s.client.Set(ctx, redisKey(bagKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart bag %s: %w", bagKey, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, bagKey string) error {
	if err := s.client.Del(ctx, redisKey(bagKey)).Err(); err != nil {
		return fmt.Errorf("redis delete cart bag %s: %w", bagKey, err)
	}
	return nil
}

func redisKey(bagKey string) string {
	return "cart:" + bagKey
}

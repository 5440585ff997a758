package session

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStorage keeps the slots under <Prefix>:token and <Prefix>:user.
type RedisStorage struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{Client: client, Prefix: prefix}
}

func (s *RedisStorage) key(slot string) string {
	return s.Prefix + ":" + slot
}

func (s *RedisStorage) Load(ctx context.Context) (string, string, error) {
	if s.Client == nil {
		return "", "", fmt.Errorf("redis client not initialized")
	}

	values, err := s.Client.MGet(ctx, s.key(TokenKey), s.key(UserKey)).Result()
	if err != nil {
		return "", "", fmt.Errorf("failed to read session from Redis: %w", err)
	}

	token, _ := values[0].(string)
	user, _ := values[1].(string)
	return token, user, nil
}

// Save writes both keys in one MULTI/EXEC.
func (s *RedisStorage) Save(ctx context.Context, token, user string) error {
	if s.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(TokenKey), token, 0)
		pipe.Set(ctx, s.key(UserKey), user, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (s *RedisStorage) Clear(ctx context.Context) error {
	if s.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	if err := s.Client.Del(ctx, s.key(TokenKey), s.key(UserKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear session in Redis: %w", err)
	}
	return nil
}

package fsmstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL — срок жизни записи состояния. Каждый Set продлевает срок заново,
// поэтому TTL истекает только у действительно брошенных диалогов.
const DefaultTTL = 30 * 24 * time.Hour

// RedisStore хранит состояния диалогов в Redis под ключами "<prefix><chat_id>".
// Владеет переданным клиентом: Close() закрывает соединение.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore создаёт хранилище поверх готового клиента Redis.
// При ttl <= 0 используется DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: "fsm:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(chatID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, chatID)
}

// Get возвращает сериализованное состояние чата либо (nil, nil), если записи нет.
func (s *RedisStore) Get(ctx context.Context, chatID int64) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fsmstate: get chat %d: %w", chatID, err)
	}
	return data, nil
}

// Set записывает состояние чата и продлевает TTL записи.
func (s *RedisStore) Set(ctx context.Context, chatID int64, data []byte) error {
	if err := s.rdb.Set(ctx, s.key(chatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("fsmstate: set chat %d: %w", chatID, err)
	}
	return nil
}

// Clear удаляет состояние чата. Отсутствие записи не считается ошибкой.
func (s *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.rdb.Del(ctx, s.key(chatID)).Err(); err != nil {
		return fmt.Errorf("fsmstate: clear chat %d: %w", chatID, err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

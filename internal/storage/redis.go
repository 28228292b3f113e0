package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each message as a JSON blob and indexes it in a per-room
// sorted set scored by creation time in milliseconds. Ties are broken by the
// member (the ULID), which sorts in creation order.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func messageKey(id string) string {
	return fmt.Sprintf("chat:message:%s", id)
}

func roomIndexKey(room string) string {
	return fmt.Sprintf("chat:room:%s:messages", room)
}

func (s *RedisStore) Insert(ctx context.Context, msg *Message) (string, error) {
	stamp(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(msg.ID), data, 0)
		pipe.ZAdd(ctx, roomIndexKey(msg.Room), redis.Z{
			Score:  float64(msg.CreatedAt.UnixMilli()),
			Member: msg.ID,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*Message, error) {
	data, err := s.client.Get(ctx, messageKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *RedisStore) FindByRoom(ctx context.Context, room string, limit int) ([]Message, error) {
	ids, err := s.client.ZRevRange(ctx, roomIndexKey(room), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Message{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[len(ids)-1-i] = messageKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// deleted between the index read and the fetch
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, update Update) error {
	if update.empty() {
		return nil
	}
	msg, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrNotFound
	}
	apply(msg, update)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, messageKey(id), data, redis.KeepTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	msg, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrNotFound
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messageKey(id))
		pipe.ZRem(ctx, roomIndexKey(msg.Room), id)
		return nil
	})
	return err
}

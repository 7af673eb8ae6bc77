package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

// Redis implements Store on top of a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Dial connects to a single redis node and verifies it with PING.
func Dial(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	logger.Store.Info("Connected to redis at %s (db %d)", addr, db)
	return &Redis{client: client}, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration, touch ...string) error {
	var err error
	if len(touch) == 0 {
		err = r.client.Set(ctx, key, value, ttl).Err()
	} else {
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			setAndTouch(ctx, pipe, key, value, ttl, touch)
			return nil
		})
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// setAndTouch queues a write of key and a TTL refresh of every touch key.
// A zero ttl leaves the touch keys alone.
func setAndTouch(ctx context.Context, pipe redis.Pipeliner, key string, value []byte, ttl time.Duration, touch []string) {
	pipe.Set(ctx, key, value, ttl)
	if ttl <= 0 {
		return
	}
	for _, k := range touch {
		pipe.Expire(ctx, k, ttl)
	}
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration, touch ...string) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(current, old) {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			setAndTouch(ctx, pipe, key, value, ttl, touch)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("compare-and-swap %s: %w", key, err)
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}

func (r *Redis) SetAndAdd(ctx context.Context, values map[string][]byte, ttl time.Duration, setKey string, members ...string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, key, value, ttl)
		}
		if len(members) > 0 {
			pipe.SAdd(ctx, setKey, toArgs(members)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("atomic create in %s: %w", setKey, err)
	}
	return nil
}

func (r *Redis) DeleteAndRemove(ctx context.Context, keys []string, setKey string, members ...string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		if len(members) > 0 {
			pipe.SRem(ctx, setKey, toArgs(members)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("atomic delete in %s: %w", setKey, err)
	}
	return nil
}

func (r *Redis) SAdd(ctx context.Context, key, member string) (bool, error) {
	added, err := r.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", key, err)
	}
	return added == 1, nil
}

func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.client.SRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) RPush(ctx context.Context, key string, value []byte) error {
	if err := r.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LPush(ctx context.Context, key string, value []byte) error {
	if err := r.client.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

func (r *Redis) LPop(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lpop %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

// RedisStore implements Store in Redis. Each record is a JSON string under
// <prefix>:record:<uri>; pending URIs are kept in the sorted set
// <prefix>:pending scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a new store backed by Redis.
func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, "conditions")
}

// NewRedisStoreFromClient uses an existing client and key prefix.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) recordKey(uri string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, uri)
}

func (s *RedisStore) pendingKey() string {
	return s.prefix + ":pending"
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, c conditions.Condition) (*Record, error) {
	rec, err := NewRecord(c, s.now())
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	key := s.recordKey(rec.URI)

	// The record and its pending index entry are written in one transaction.
	var existing *Record
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err == nil {
			existing, err = decodeRecord(current)
			return err
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, s.pendingKey(), redis.Z{
				Score:  pendingScore(rec.CreatedAt),
				Member: rec.URI,
			})
			return nil
		})
		return err
	}
	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent Put created the record first.
		return s.Get(ctx, rec.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("redis store put: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	return rec, nil
}

// pendingScore orders the pending set by creation time in microseconds,
// which a float64 holds exactly. Records created in the same microsecond
// fall back to member (URI) order.
func pendingScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (s *RedisStore) Get(ctx context.Context, uri string) (*Record, error) {
	payload, err := s.client.Get(ctx, s.recordKey(uri)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store get: %w", err)
	}
	return decodeRecord(payload)
}

func (s *RedisStore) MarkFulfilled(ctx context.Context, uri string, fulfillment []byte) error {
	key := s.recordKey(uri)
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return err
		}
		if rec.State == StateFulfilled {
			return ErrAlreadyFulfilled
		}
		rec.State = StateFulfilled
		rec.Fulfillment = append([]byte(nil), fulfillment...)
		rec.UpdatedAt = s.now().UTC()
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.ZRem(ctx, s.pendingKey(), uri)
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent writer won; report what it left behind.
		rec, getErr := s.Get(ctx, uri)
		if getErr == nil && rec.State == StateFulfilled {
			return ErrAlreadyFulfilled
		}
	}
	return err
}

func (s *RedisStore) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	uris, err := s.client.ZRange(ctx, s.pendingKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store list: %w", err)
	}
	if len(uris) == 0 {
		return nil, nil
	}
	keys := make([]string, len(uris))
	for i, uri := range uris {
		keys[i] = s.recordKey(uri)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store list: %w", err)
	}
	out := make([]*Record, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRecord(payload []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &rec, nil
}

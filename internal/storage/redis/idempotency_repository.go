// Package redis хранит ключи идемпотентности в Redis. Срок жизни записи
// задаётся TTL ключа, поэтому отдельная чистка не требуется.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	keyPrefix = "shop:idempotency:"
	// minTTL не даёт Redis отвергнуть SET с нулевым или отрицательным сроком.
	minTTL = time.Millisecond
)

type record struct {
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IdempotencyRepository реализует domain.IdempotencyRepository поверх Redis.
type IdempotencyRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий поверх готового клиента.
func NewIdempotencyRepository(client redis.UniversalClient) *IdempotencyRepository {
	return &IdempotencyRepository{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// NewClient создаёт клиента по адресу host:port и проверяет соединение.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Reserve кладёт ключ через SETNX с TTL до ttlAt; Redis сам освобождает просроченные ключи.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	rec, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	payload, err := json.Marshal(fromDomain(rec))
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("encode idempotency record: %w", err)
	}

	created, err := r.client.SetNX(ctx, redisKey(rec.Key), payload, ttlFor(rec.TTLAt, rec.CreatedAt)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if created {
		return rec, nil
	}

	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load reserved idempotency key: %w", err)
	}
	return existing, existing.Collision(rec.RequestHash)
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	raw, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	out := rec.toDomain(key)
	if !out.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", rec.Status, key)
	}
	return out, nil
}

// Complete перезаписывает значение через SET XX KEEPTTL, не продлевая срок жизни ключа.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	current, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	current.Complete(responseBody, httpStatus, r.now())

	payload, err := json.Marshal(fromDomain(current))
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	updated, err := r.client.SetXX(ctx, redisKey(current.Key), payload, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if !updated {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// Release удаляет ключ под WATCH, чтобы не снести запись, которую успели завершить.
func (r *IdempotencyRepository) Release(ctx context.Context, key, requestHash string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	rkey := redisKey(key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, rkey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode idempotency record %s: %w", key, err)
		}
		if !rec.toDomain(key).ReleasableBy(requestHash) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			return nil
		})
		return err
	}, rkey)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired ничего не удаляет: просроченные ключи Redis убирает сам.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping проверяет соединение для readiness.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func fromDomain(rec domain.IdempotencyRecord) record {
	return record{
		RequestHash:  rec.RequestHash,
		ResponseBody: rec.ResponseBody,
		HTTPStatus:   rec.HTTPStatus,
		Status:       string(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (rec record) toDomain(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  rec.RequestHash,
		ResponseBody: append([]byte(nil), rec.ResponseBody...),
		HTTPStatus:   rec.HTTPStatus,
		Status:       domain.IdempotencyStatus(rec.Status),
		TTLAt:        rec.TTLAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func redisKey(key string) string {
	return keyPrefix + key
}

func ttlFor(ttlAt, now time.Time) time.Duration {
	return max(ttlAt.Sub(now), minTTL)
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)

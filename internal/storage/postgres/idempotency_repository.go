package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository хранит ключи в таблице idempotency_keys.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

const idempotencyColumns = `key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at`

// Reserve вставляет ключ или перезанимает просроченный одной командой;
// пустой RETURNING означает, что ключ ещё жив.
func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	rec, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, nowUTC())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE
		SET request_hash  = EXCLUDED.request_hash,
		    response_body = NULL,
		    http_status   = NULL,
		    status        = EXCLUDED.status,
		    ttl_at        = EXCLUDED.ttl_at,
		    created_at    = EXCLUDED.created_at,
		    updated_at    = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
		RETURNING `+idempotencyColumns,
		rec.Key, rec.RequestHash, string(rec.Status), rec.TTLAt, rec.CreatedAt,
	)
	stored, err := scanIdempotencyRecord(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, rec.Key)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load reserved idempotency key: %w", err)
	}
	return existing, existing.Collision(rec.RequestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rec, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key))
	if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, err
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_body = $2, http_status = $3, status = $4, updated_at = $5
		WHERE key = $1
	`, key, responseBody, httpStatus, string(domain.OutcomeStatus(httpStatus)), nowUTC())
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	} else if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// Release удаляет ключ, только пока он в статусе processing и занят тем же запросом.
func (r *idempotencyRepository) Release(ctx context.Context, key, requestHash string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND request_hash = $2 AND status = $3
	`, key, strings.TrimSpace(requestHash), string(domain.IdempotencyStatusProcessing)); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired удаляет до limit просроченных ключей (limit<=0: без ограничения), старые первыми.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = nowUTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var limitArg sql.NullInt64
	if limit > 0 {
		limitArg = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
		)
	`, before, limitArg)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(n), nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec        domain.IdempotencyRecord
		status     string
		body       []byte
		httpStatus sql.NullInt64
	)
	err := row.Scan(&rec.Key, &rec.RequestHash, &body, &httpStatus, &status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, rec.Key)
	}
	rec.ResponseBody = body
	rec.HTTPStatus = int(httpStatus.Int64)
	return rec, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)

// Package postgres реализует репозитории магазина поверх PostgreSQL (database/sql + pgx).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolSettings задаёт параметры пула соединений.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPoolSettings подходит для одного экземпляра API.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpen:     20,
		MaxIdle:     10,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// Store держит пул соединений, общий для всех репозиториев.
type Store struct {
	db *sql.DB
}

// Open подключается к базе с DefaultPoolSettings.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithPool(ctx, dsn, DefaultPoolSettings())
}

// OpenWithPool подключается к базе и проверяет её доступность.
func OpenWithPool(ctx context.Context, dsn string, pool PoolSettings) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул репозиториям пакета.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется readiness-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	pingCtx, cancel := withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции; используется при автомиграции на старте.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.MigrateUp(ctx, 0)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

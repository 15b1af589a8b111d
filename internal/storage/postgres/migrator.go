package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// schemaLockKey: ключ pg_advisory_lock, сериализующий миграции между экземплярами.
const schemaLockKey = int64(0x73686f70)

const schemaTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

//go:embed sql/migrations/*.sql
var schemaFS embed.FS

var migrationFileRe = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

// MigrationState описывает состояние схемы.
type MigrationState struct {
	Version int64
	Applied int
	// Pending: имена неприменённых миграций в порядке версий.
	Pending []string
}

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrateUp применяет до steps неприменённых миграций (0: все) и возвращает число применённых.
func (s *Store) MigrateUp(ctx context.Context, steps int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	all, err := parseMigrations(schemaFS)
	if err != nil {
		return 0, err
	}

	done := 0
	err = s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range all {
			if steps > 0 && done >= steps {
				break
			}
			if _, ok := applied[m.Version]; ok {
				continue
			}
			if err := runMigrationStep(ctx, conn, m, true); err != nil {
				return err
			}
			done++
		}
		return nil
	})
	return done, err
}

// MigrateDown откатывает steps последних миграций; steps<=0 означает один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if steps <= 0 {
		steps = 1
	}
	all, err := parseMigrations(schemaFS)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migration, len(all))
	for _, m := range all {
		byVersion[m.Version] = m
	}

	done := 0
	err = s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		slices.SortFunc(versions, func(a, b int64) int { return cmp.Compare(b, a) })

		for _, v := range versions {
			if done >= steps {
				break
			}
			m, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", v)
			}
			if err := runMigrationStep(ctx, conn, m, false); err != nil {
				return err
			}
			done++
		}
		return nil
	})
	return done, err
}

// MigrationStatus возвращает текущую версию схемы и список ожидающих миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if err := s.ready(); err != nil {
		return MigrationState{}, err
	}
	all, err := parseMigrations(schemaFS)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := withTimeout(ctx)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return MigrationState{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, schemaTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(queryCtx, conn)
	if err != nil {
		return MigrationState{}, err
	}
	return stateOf(all, applied), nil
}

func stateOf(all []migration, applied map[int64]struct{}) MigrationState {
	state := MigrationState{Applied: len(applied)}
	for v := range applied {
		state.Version = max(state.Version, v)
	}
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			state.Pending = append(state.Pending, m.label())
		}
	}
	return state
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	return nil
}

// withSchemaLock выполняет fn на выделенном соединении под advisory lock.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := withTimeout(ctx)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn)
}

// runMigrationStep применяет (up=true) или откатывает одну миграцию вместе с записью в schema_migrations.
func runMigrationStep(ctx context.Context, conn *sql.Conn, m migration, up bool) error {
	direction, body := "down", m.Down
	if up {
		direction, body = "up", m.Up
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", direction, m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("%s %s: %w", direction, m.label(), err)
	}
	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s %s: %w", direction, m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", direction, m.label(), err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]struct{}, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]struct{})
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// parseMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql и сортирует их по версии.
func parseMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationFileRe.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, parts[2])
		}

		target := &m.Down
		if parts[3] == "up" {
			target = &m.Up
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

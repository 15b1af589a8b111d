// Command migrate применяет и откатывает миграции схемы магазина в PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "SHOP_POSTGRES_DSN"
)

// migrator: операции Store, нужные командам миграции.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) (int, error)
	MigrateDown(ctx context.Context, steps int) (int, error)
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

func main() {
	var (
		direction string
		steps     int
		dsn       string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flag.Parse()

	dsn = resolveDSN(dsn, os.Getenv)
	if dsn == "" {
		fail("%s (or -dsn) is required", envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, direction, steps, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func resolveDSN(flagValue string, getenv func(string) string) string {
	if dsn := strings.TrimSpace(flagValue); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(getenv(envPostgresDSN))
}

func run(ctx context.Context, m migrator, direction string, steps int, out io.Writer) error {
	var (
		changed int
		err     error
	)
	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up":
		changed, err = m.MigrateUp(ctx, steps)
	case "down":
		changed, err = m.MigrateDown(ctx, max(steps, 1))
	case "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", direction, err)
	}

	state, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	if direction == "status" {
		_, _ = fmt.Fprintf(out, "migration status: version=%d applied=%d pending=%d\n", state.Version, state.Applied, len(state.Pending))
		for _, name := range state.Pending {
			_, _ = fmt.Fprintf(out, "  pending %s\n", name)
		}
		return nil
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: changed=%d version=%d\n", direction, changed, state.Version)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

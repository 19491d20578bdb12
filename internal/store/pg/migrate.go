package pg

import (
	"context"
	"fmt"
	"path"
	"sort"

	migrations "github.com/rolekits/core/migrations/postgres"

	"github.com/rolekits/core/internal/observability/logger"
)

// Migrate aplica las migraciones embebidas en orden lexicográfico.
// El DDL es idempotente (IF NOT EXISTS), así que correrlo en cada arranque
// es seguro.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(migrations.Dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.FS.ReadFile(path.Join(migrations.Dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		logger.From(ctx).Info("migration applied",
			logger.Component("store.pg"),
			logger.String("file", name),
		)
	}
	logger.From(ctx).Info("migrations done",
		logger.Component("store.pg"),
		logger.Count(len(names)),
	)
	return nil
}

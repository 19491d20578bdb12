// Package pg implementa los contratos de persistencia sobre Postgres (pgx).
//
// Las mutaciones por key (touch de last_used_at, flip de active) son UPDATEs
// de una sola fila: la atomicidad a nivel de fila del motor serializa los
// validates concurrentes de la misma key sin locking in-process.
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolekits/core/internal/observability/logger"
)

type Store struct{ pool *pgxpool.Pool }

// Config de tuning del pool. Cero valores usan defaults conservadores.
type Config struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// New crea el store con su pool. Startup no bloqueante: si el ping falla se
// loguea y se sigue, para poder levantar el proceso con la DB caída.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg pool startup ping failed",
			logger.Component("store.pg"),
			logger.Err(err),
		)
	} else {
		logger.L().Info("pg pool ready",
			logger.Component("store.pg"),
			logger.Int("max_conns", int(pcfg.MaxConns)),
		)
	}

	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (métricas, migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

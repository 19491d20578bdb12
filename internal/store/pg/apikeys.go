package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rolekits/core/internal/store/core"
)

func (s *Store) InsertAPIKey(ctx context.Context, k *core.APIKey) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO api_key (id, secret_hash, owner_id, name, created_at, expires_at, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		k.ID, k.SecretHash, k.OwnerID, k.Name, k.CreatedAt, k.ExpiresAt, k.Active,
	)
	return err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, secretHash string) (*core.APIKey, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, secret_hash, owner_id, name, created_at, last_used_at, expires_at, active
          FROM api_key
         WHERE secret_hash = $1`,
		secretHash,
	)
	return scanAPIKey(row)
}

func (s *Store) GetAPIKeyByID(ctx context.Context, id, ownerID string) (*core.APIKey, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, secret_hash, owner_id, name, created_at, last_used_at, expires_at, active
          FROM api_key
         WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	return scanAPIKey(row)
}

func (s *Store) ListAPIKeysByOwner(ctx context.Context, ownerID string) ([]core.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, secret_hash, owner_id, name, created_at, last_used_at, expires_at, active
          FROM api_key
         WHERE owner_id = $1
         ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id string, when time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_key SET last_used_at = $1 WHERE id = $2`,
		when, id,
	)
	return err
}

func (s *Store) SetAPIKeyActive(ctx context.Context, id, ownerID string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_key SET active = $1 WHERE id = $2 AND owner_id = $3`,
		active, id, ownerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id, ownerID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_key WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAPIKey(row rowScanner) (*core.APIKey, error) {
	var k core.APIKey
	err := row.Scan(&k.ID, &k.SecretHash, &k.OwnerID, &k.Name,
		&k.CreatedAt, &k.LastUsedAt, &k.ExpiresAt, &k.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rolekits/core/internal/store/core"
)

func (s *Store) GetResume(ctx context.Context, id string) (*core.Resume, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, owner_id, title, data, version, created_at, updated_at
          FROM resume
         WHERE id = $1`,
		id,
	)
	return scanResume(row)
}

func (s *Store) ListResumesByOwner(ctx context.Context, ownerID string) ([]core.Resume, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, owner_id, title, data, version, created_at, updated_at
          FROM resume
         WHERE owner_id = $1
         ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Resume
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpsertResume crea o reemplaza el estado y avanza version en el mismo
// statement. Devuelve la fila resultante, que es lo que se publica al bus.
func (s *Store) UpsertResume(ctx context.Context, r *core.Resume) (*core.Resume, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
        INSERT INTO resume (id, owner_id, title, data, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, 1, $5, $5)
        ON CONFLICT (id) DO UPDATE
           SET title      = EXCLUDED.title,
               data       = EXCLUDED.data,
               version    = resume.version + 1,
               updated_at = EXCLUDED.updated_at
         WHERE resume.owner_id = EXCLUDED.owner_id
        RETURNING id, owner_id, title, data, version, created_at, updated_at`,
		r.ID, r.OwnerID, r.Title, r.Data, now,
	)
	out, err := scanResume(row)
	if err != nil {
		// ON CONFLICT con WHERE que no matchea no devuelve fila: el id existe
		// pero pertenece a otro owner.
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrConflict
		}
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteResume(ctx context.Context, id, ownerID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM resume WHERE id = $1 AND owner_id = $2`,
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

func scanResume(row rowScanner) (*core.Resume, error) {
	var r core.Resume
	err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Data, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

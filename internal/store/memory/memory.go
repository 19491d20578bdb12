// Package memory implementa los contratos de persistencia con maps en
// memoria. Para desarrollo, tooling y tests; no sobrevive al proceso.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rolekits/core/internal/store/core"
)

type Store struct {
	mu      sync.RWMutex
	keys    map[string]*core.APIKey // por id
	byHash  map[string]string       // secret_hash -> id
	resumes map[string]*core.Resume // por id
}

func New() *Store {
	return &Store{
		keys:    make(map[string]*core.APIKey),
		byHash:  make(map[string]string),
		resumes: make(map[string]*core.Resume),
	}
}

// Ping siempre responde ok: no hay backend externo que pueda caerse.
func (s *Store) Ping(ctx context.Context) error { return nil }

// ───────────────────────── API keys ─────────────────────────

func (s *Store) InsertAPIKey(ctx context.Context, k *core.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[k.ID]; exists {
		return core.ErrConflict
	}
	if _, exists := s.byHash[k.SecretHash]; exists {
		return core.ErrConflict
	}
	cp := *k
	s.keys[k.ID] = &cp
	s.byHash[k.SecretHash] = k.ID
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, secretHash string) (*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[secretHash]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.keys[id]
	return &cp, nil
}

func (s *Store) GetAPIKeyByID(ctx context.Context, id, ownerID string) (*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[id]
	if !ok || k.OwnerID != ownerID {
		return nil, core.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *Store) ListAPIKeysByOwner(ctx context.Context, ownerID string) ([]core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.APIKey
	for _, k := range s.keys {
		if k.OwnerID == ownerID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return core.ErrNotFound
	}
	w := when
	k.LastUsedAt = &w
	return nil
}

func (s *Store) SetAPIKeyActive(ctx context.Context, id, ownerID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.OwnerID != ownerID {
		return core.ErrNotFound
	}
	k.Active = active
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || k.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.byHash, k.SecretHash)
	delete(s.keys, id)
	return nil
}

// ───────────────────────── Resumes ─────────────────────────

func (s *Store) GetResume(ctx context.Context, id string) (*core.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resumes[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListResumesByOwner(ctx context.Context, ownerID string) ([]core.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Resume
	for _, r := range s.resumes {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpsertResume(ctx context.Context, r *core.Resume) (*core.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	prev, exists := s.resumes[r.ID]
	if exists && prev.OwnerID != r.OwnerID {
		return nil, core.ErrConflict
	}

	cp := *r
	cp.UpdatedAt = now
	if exists {
		cp.CreatedAt = prev.CreatedAt
		cp.Version = prev.Version + 1
	} else {
		cp.CreatedAt = now
		cp.Version = 1
	}
	s.resumes[r.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) DeleteResume(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resumes[id]
	if !ok || r.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.resumes, id)
	return nil
}

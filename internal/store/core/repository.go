package core

import (
	"context"
	"time"
)

// APIKeyStore define el contrato de persistencia para API keys.
// Las mutaciones por key (TouchLastUsed, SetActive) deben ser statements
// atómicos a nivel de fila; no hay locking in-process sobre el store.
type APIKeyStore interface {
	InsertAPIKey(ctx context.Context, k *APIKey) error

	// GetAPIKeyByHash busca por hash del secreto. ErrNotFound si no existe.
	// No filtra por active/expiración; eso lo decide la capa de servicio.
	GetAPIKeyByHash(ctx context.Context, secretHash string) (*APIKey, error)

	// GetAPIKeyByID busca una key del owner. ErrNotFound si no existe o no
	// pertenece al owner.
	GetAPIKeyByID(ctx context.Context, id, ownerID string) (*APIKey, error)

	// ListAPIKeysByOwner devuelve las keys del owner, más recientes primero.
	ListAPIKeysByOwner(ctx context.Context, ownerID string) ([]APIKey, error)

	// TouchAPIKeyLastUsed actualiza last_used_at. Best-effort: el caller puede
	// ignorar el error sin afectar la decisión de autenticación.
	TouchAPIKeyLastUsed(ctx context.Context, id string, when time.Time) error

	// SetAPIKeyActive cambia el flag active de una key del owner.
	// ErrNotFound si la key no existe o no pertenece al owner.
	SetAPIKeyActive(ctx context.Context, id, ownerID string, active bool) error

	// DeleteAPIKey elimina la key del owner. ErrNotFound si no existe o no
	// pertenece al owner.
	DeleteAPIKey(ctx context.Context, id, ownerID string) error
}

// ResumeReader es lo mínimo que necesita el bus para el snapshot inicial.
type ResumeReader interface {
	GetResume(ctx context.Context, id string) (*Resume, error)
}

// ResumeStore es el contrato del colaborador de registros. La lógica CRUD
// campo a campo es externa; este core solo lee y aplica el upsert que el glue
// HTTP usa antes de publicar.
type ResumeStore interface {
	ResumeReader
	ListResumesByOwner(ctx context.Context, ownerID string) ([]Resume, error)

	// UpsertResume crea o reemplaza el estado del resume y avanza Version.
	// Devuelve el estado resultante, que es el que se publica al bus.
	UpsertResume(ctx context.Context, r *Resume) (*Resume, error)

	DeleteResume(ctx context.Context, id, ownerID string) error
}

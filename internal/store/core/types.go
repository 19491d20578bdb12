package core

import (
	"encoding/json"
	"time"
)

// Resume es el registro que edita el producto. El CRUD campo a campo vive en
// la capa de arriba; acá solo necesitamos identidad, dueño y el estado completo
// para poder publicarlo a los suscriptores.
type Resume struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Title     string          `json:"title"`
	Data      json.RawMessage `json:"data,omitempty"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// APIKey es la representación persistida de una key. SecretHash es
// sha256(plaintext) en hex; el plaintext no se guarda nunca.
type APIKey struct {
	ID         string     `json:"id"`
	SecretHash string     `json:"-"`
	OwnerID    string     `json:"owner_id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Active     bool       `json:"active"`
}

// Expired reporta si la key venció. Keys sin ExpiresAt no vencen.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

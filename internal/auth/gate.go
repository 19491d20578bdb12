// Package auth resuelve credenciales entrantes a un Principal uniforme.
//
// Un mismo header transporta cualquiera de las dos credenciales soportadas:
// bearer token firmado o API key opaca. El gate intenta primero el bearer
// (puro, sin I/O) y recién ante cualquier falla consulta el keystore.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rolekits/core/internal/auth/apikey"
	"github.com/rolekits/core/internal/auth/token"
	"github.com/rolekits/core/internal/observability/logger"
)

// ErrUnauthenticated es el único error que cruza el borde hacia el caller.
// No distinguimos firma rota de key inexistente: un atacante no tiene por qué
// saber cuál de las dos verificaciones falló.
var ErrUnauthenticated = errors.New("unauthenticated")

// Gate compone el verificador de bearer tokens y el keystore detrás de una
// sola operación de autenticación.
type Gate struct {
	verifier *token.Verifier
	keys     *apikey.Service
}

// NewGate crea el gate. keys puede ser nil (solo bearer, útil en tests).
func NewGate(verifier *token.Verifier, keys *apikey.Service) *Gate {
	return &Gate{verifier: verifier, keys: keys}
}

// Authenticate resuelve el valor crudo del header de credenciales a un
// Principal. La normalización de nombres de header es del transporte; acá
// llega un único string canónico.
//
// Orden fijo: strip de "Bearer " si está, verificación de firma primero
// (barata, sin I/O), fallback a lookup de API key. Cualquier falla colapsa en
// ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, header string) (*Principal, error) {
	raw := strings.TrimSpace(header)
	if l := len("bearer "); len(raw) >= l && strings.EqualFold(raw[:l], "bearer ") {
		raw = strings.TrimSpace(raw[l:])
	}
	if raw == "" {
		observeAuth("none", "missing")
		return nil, ErrUnauthenticated
	}

	log := logger.From(ctx).With(logger.Component("auth.gate"))

	claims, tokErr := g.verifier.Verify(raw)
	if tokErr == nil {
		observeAuth("bearer", "ok")
		return &Principal{SubjectID: claims.Subject, DisplayName: claims.DisplayName}, nil
	}

	if g.keys != nil && apikey.HasPrefix(raw) {
		k, keyErr := g.keys.Validate(ctx, raw)
		if keyErr == nil {
			observeAuth("api_key", "ok")
			return &Principal{SubjectID: k.OwnerID, DisplayName: k.Name}, nil
		}
		// Causas internas separadas para debugging; afuera viaja lo opaco.
		log.Debug("api key rejected", logger.Err(keyErr))
		observeAuth("api_key", "rejected")
		return nil, ErrUnauthenticated
	}

	log.Debug("bearer rejected", logger.Err(tokErr))
	observeAuth("bearer", "rejected")
	return nil, ErrUnauthenticated
}

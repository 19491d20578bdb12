package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rolekits/core/internal/auth/apikey"
	httperrors "github.com/rolekits/core/internal/http/errors"
	"github.com/rolekits/core/internal/http/middlewares"
)

// KeysController expone el ciclo de vida de API keys del principal
// autenticado. Solo el dueño opera sobre sus keys: el owner id sale siempre
// del contexto, nunca del body.
type KeysController struct {
	Keys *apikey.Service
}

func NewKeysController(keys *apikey.Service) *KeysController {
	return &KeysController{Keys: keys}
}

type createKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

type createKeyResponse struct {
	// Key es el plaintext. Se devuelve acá y nunca más.
	Key    string `json:"key"`
	APIKey any    `json:"api_key"`
}

// Create emite una key nueva. El plaintext viaja solo en esta respuesta.
func (c *KeysController) Create(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	plaintext, k, err := c.Keys.Issue(r.Context(), principal.SubjectID, req.Name, req.ExpiresInDays)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{Key: plaintext, APIKey: k})
}

// List devuelve los metadatos de las keys del principal (sin hash).
func (c *KeysController) List(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())

	keys, err := c.Keys.ListByOwner(r.Context(), principal.SubjectID)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke desactiva una key del principal.
func (c *KeysController) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	if err := c.Keys.Revoke(r.Context(), id, principal.SubjectID); err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete elimina una key del principal definitivamente.
func (c *KeysController) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	if err := c.Keys.Delete(r.Context(), id, principal.SubjectID); err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

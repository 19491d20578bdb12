package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rolekits/core/internal/bus"
	httperrors "github.com/rolekits/core/internal/http/errors"
	"github.com/rolekits/core/internal/http/middlewares"
	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
)

// ResumesController es el glue CRUD mínimo sobre el store de resumes.
// La edición campo a campo es de la capa de producto; acá solo está lo
// necesario para que el camino de mutación publique al bus después de cada
// escritura exitosa.
type ResumesController struct {
	Store core.ResumeStore
	Bus   *bus.Bus
}

func NewResumesController(store core.ResumeStore, b *bus.Bus) *ResumesController {
	return &ResumesController{Store: store, Bus: b}
}

// Get devuelve un resume del principal.
func (c *ResumesController) Get(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	res, err := c.Store.GetResume(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}
	if res.OwnerID != principal.SubjectID {
		httperrors.WriteError(w, httperrors.ErrForbidden)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// List devuelve los resumes del principal.
func (c *ResumesController) List(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())

	list, err := c.Store.ListResumesByOwner(r.Context(), principal.SubjectID)
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"resumes": list})
}

type putResumeRequest struct {
	Title string          `json:"title"`
	Data  json.RawMessage `json:"data"`
}

// Put crea o reemplaza el estado de un resume y publica el resultado al bus.
// El publish es post-commit: los suscriptores ven exactamente lo que quedó
// persistido.
func (c *ResumesController) Put(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	if _, err := uuid.Parse(id); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("id must be a UUID"))
		return
	}

	var req putResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	updated, err := c.Store.UpsertResume(r.Context(), &core.Resume{
		ID:      id,
		OwnerID: principal.SubjectID,
		Title:   req.Title,
		Data:    req.Data,
	})
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			httperrors.WriteError(w, httperrors.ErrConflict)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	if err := c.Bus.Publish(*updated); err != nil {
		// La escritura ya está: no fallamos el request, pero queda registrado
		// que los suscriptores no vieron este estado.
		logger.From(r.Context()).Error("publish after write failed",
			logger.Component("resumes"),
			logger.ResumeID(updated.ID),
			logger.Err(err),
		)
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete elimina un resume del principal.
func (c *ResumesController) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	if err := c.Store.DeleteResume(r.Context(), id, principal.SubjectID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httperrors.WriteError(w, httperrors.ErrNotFound)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package controllers

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/rolekits/core/internal/http/errors"
)

// Pinger es lo mínimo que el readiness check necesita del storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController expone liveness y readiness.
type HealthController struct {
	Store Pinger
}

func NewHealthController(store Pinger) *HealthController {
	return &HealthController{Store: store}
}

// Live responde siempre 200: el proceso está vivo.
func (c *HealthController) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready verifica dependencias. Storage caído significa 503.
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if c.Store != nil {
		if err := c.Store.Ping(ctx); err != nil {
			httperrors.WriteError(w, &httperrors.AppError{
				Code:       "NOT_READY",
				Message:    "El almacenamiento no responde.",
				HTTPStatus: http.StatusServiceUnavailable,
				Err:        err,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

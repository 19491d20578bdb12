package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rolekits/core/internal/bus"
	httperrors "github.com/rolekits/core/internal/http/errors"
	"github.com/rolekits/core/internal/http/middlewares"
	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
)

// heartbeatInterval mantiene viva la conexión a través de proxies que cortan
// streams idle.
const heartbeatInterval = 15 * time.Second

// EventsController expone el stream de actualizaciones de un resume por SSE.
// El primer evento es el snapshot actual; después llega cada escritura en
// orden. Un cliente que no drena pierde eventos intermedios, nunca el orden.
type EventsController struct {
	Reader core.ResumeReader
	Bus    *bus.Bus
}

func NewEventsController(reader core.ResumeReader, b *bus.Bus) *EventsController {
	return &EventsController{Reader: reader, Bus: b}
}

// Stream es el handler de GET /v1/resumes/{id}/events.
func (c *EventsController) Stream(w http.ResponseWriter, r *http.Request) {
	principal := middlewares.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	// Chequeo de ownership ANTES de suscribir: un id ajeno es 403, uno
	// inexistente 404. Suscribirse a ciegas filtraría existencia de recursos.
	res, err := c.Reader.GetResume(r.Context(), id)
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrInternal.WithDetail("streaming unsupported"))
		return
	}

	sub, err := c.Bus.Subscribe(r.Context(), id)
	if err != nil {
		if errors.Is(err, bus.ErrBusUnavailable) {
			httperrors.WriteError(w, httperrors.ErrBusUnavailable)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternal.WithCause(err))
		return
	}
	defer c.Bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := logger.From(r.Context()).With(
		logger.Component("events"),
		logger.ResumeID(id),
	)
	log.Info("sse stream opened")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("sse stream closed by client")
			return

		case update, open := <-sub.C():
			if !open {
				log.Info("sse stream closed by bus")
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				log.Error("marshal update failed", logger.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: update\ndata: %s\n\n", payload); err != nil {
				log.Info("sse write failed, dropping stream", logger.Err(err))
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

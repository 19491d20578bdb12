package middlewares

import (
	"net/http"
	"time"

	"github.com/rolekits/core/internal/observability/logger"
)

// statusRecorder captura el status code de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
		s.wroteHeader = true
	}
	return s.ResponseWriter.Write(b)
}

// Flush deja pasar el flush al writer real; sin esto el streaming SSE se
// queda bufferizado atrás del recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithLogging loguea cada request con campos estructurados e inyecta un
// logger scoped (request_id, method, path) en el contexto.
func WithLogging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rid := GetRequestID(r.Context())
			scoped := logger.With(
				logger.RequestID(rid),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			ctx := logger.ToContext(r.Context(), scoped)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			scoped.Info("request completed",
				logger.Status(rec.status),
				logger.Duration(time.Since(start)),
				logger.ClientIP(r.RemoteAddr),
			)
		})
	}
}

package middlewares

import (
	"net/http"
	"strings"

	"github.com/rolekits/core/internal/auth"
	httperrors "github.com/rolekits/core/internal/http/errors"
)

// =================================================================================
// AUTHENTICATION MIDDLEWARE
// =================================================================================

// RequireAuth resuelve la credencial del request contra el gate y guarda el
// Principal en el contexto. Sin credencial válida responde 401 con el error
// opaco; la causa real solo queda en los logs del gate.
//
// El header canónico es Authorization. Para el attach de SSE el browser no
// puede mandar headers (EventSource), así que se acepta ?access_token= como
// fallback; la normalización de dónde venía la credencial termina acá, el
// gate recibe un único string.
func RequireAuth(gate *auth.Gate) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				header = strings.TrimSpace(r.URL.Query().Get("access_token"))
			}

			principal, err := gate.Authenticate(r.Context(), header)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				httperrors.WriteError(w, httperrors.ErrUnauthenticated)
				return
			}

			next.ServeHTTP(w, r.WithContext(setPrincipal(r.Context(), principal)))
		})
	}
}

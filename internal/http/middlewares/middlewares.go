// Package middlewares contiene los decoradores HTTP del borde: request id,
// logging scoped y autenticación. El orden de aplicación lo decide el router.
package middlewares

import "net/http"

// Middleware es un decorador de http.Handler.
type Middleware func(http.Handler) http.Handler

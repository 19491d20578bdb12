package middlewares

import (
	"context"

	"github.com/rolekits/core/internal/auth"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyPrincipal
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID devuelve el request id del contexto, o "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func setPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// GetPrincipal devuelve el principal autenticado del contexto, o nil.
// Después de RequireAuth nunca es nil.
func GetPrincipal(ctx context.Context) *auth.Principal {
	v, _ := ctx.Value(ctxKeyPrincipal).(*auth.Principal)
	return v
}

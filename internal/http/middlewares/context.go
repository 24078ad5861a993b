package middlewares

import (
	"context"

	"github.com/dropDatabas3/portalgate/internal/jwt"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	ctxClaimsKey    ctxKey = "claims"
	ctxRequestIDKey ctxKey = "request_id"
)

// WithClaims inyecta los claims verificados en el contexto.
func WithClaims(ctx context.Context, claims *jwt.TokenClaims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, claims)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetClaims obtiene los claims admitidos. nil si la ruta no pasó por RequireAdmission.
func GetClaims(ctx context.Context) *jwt.TokenClaims {
	if c, ok := ctx.Value(ctxClaimsKey).(*jwt.TokenClaims); ok {
		return c
	}
	return nil
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}

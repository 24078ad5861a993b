// Package audit emite los eventos de ciclo de vida de sesiones en el logger
// "audit". Los emails nunca se escriben completos.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

type Event string

const (
	SignInEstablished Event = "sign_in.established"
	SignInRejected    Event = "sign_in.rejected"
	SessionSignedOut  Event = "session.signed_out"
	SessionExpired    Event = "session.expired"
)

// Log escribe ev con los campos dados. Usa el logger del request si existe.
func Log(ctx context.Context, ev Event, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(string(ev), append([]zap.Field{zap.String("event", string(ev))}, fields...)...)
}

// Email campo con la dirección enmascarada ("j…@e….com").
func Email(addr string) zap.Field { return zap.String("email", MaskEmail(addr)) }

// MaskEmail deja la primera letra del usuario y del primer label del dominio.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		if s == "" {
			return ""
		}
		return "***"
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

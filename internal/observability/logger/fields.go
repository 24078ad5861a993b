package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Route(v string) zap.Field     { return zap.String("route", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }

// DurationMs crea un campo con la duración en milisegundos.
func DurationMs(d time.Duration) zap.Field { return zap.Int64("duration_ms", d.Milliseconds()) }

// =================================================================================
// CAMPOS ESTÁNDAR - AUTH
// =================================================================================

// Reason es el código de rechazo legible por máquina (reason.Code).
func Reason(v string) zap.Field { return zap.String("reason", v) }

// Outcome es el resultado de una decisión (allow, redirect_to_auth, reject, ...).
func Outcome(v string) zap.Field { return zap.String("outcome", v) }

func KeyID(v string) zap.Field          { return zap.String("kid", v) }
func CredentialKind(v string) zap.Field { return zap.String("credential_kind", v) }
func State(v string) zap.Field          { return zap.String("state", v) }
func Subject(v string) zap.Field        { return zap.String("sub", v) }

// SessionID loguea sólo un prefijo del ID de sesión.
func SessionID(v string) zap.Field {
	if len(v) > 8 {
		v = v[:8] + "…"
	}
	return zap.String("session_id", v)
}

// EmailDomain loguea sólo el dominio del email (nunca el local part).
func EmailDomain(email string) zap.Field {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return zap.String("email_domain", strings.ToLower(email[i+1:]))
	}
	return zap.String("email_domain", "")
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func URL(v string) zap.Field       { return zap.String("url", v) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Any crea un campo genérico.
func Any(key string, v any) zap.Field { return zap.Any(key, v) }

// Package reason define los códigos de rechazo legibles por máquina que comparten
// el gate de admisión y el orquestador de sesiones.
//
// Cada rechazo lleva un Code (para auditoría/logs/métricas) distinto del mensaje que
// ve el usuario final (UserMessage). Los mensajes de allow-list son deliberadamente
// genéricos: no revelan la mecánica del chequeo externo.
package reason

// Code es un código de rechazo estable (snake_case).
type Code string

// =================================================================================
// VERIFICACIÓN DE TOKENS
// =================================================================================

const (
	Malformed      Code = "malformed"
	UnknownKey     Code = "unknown_key"
	BadSignature   Code = "bad_signature"
	Expired        Code = "expired"
	ClaimMismatch  Code = "claim_mismatch"
	KeyFetchFailed Code = "key_fetch_failed"

	// MissingToken: el proxy upstream siempre adjunta un token; su ausencia es una
	// falla de integridad, no el caso "no logueado".
	MissingToken Code = "missing_token"
)

// =================================================================================
// SIGN-IN
// =================================================================================

const (
	AllowListDenied      Code = "allow_list_denied"
	AllowListTimeout     Code = "allow_list_timeout"
	CredentialInvalid    Code = "credential_invalid"
	AdapterPersistFailed Code = "adapter_persist_failed"
)

// GenericDenial es el texto que ve el usuario cuando el allow-list rechaza.
const GenericDenial = "Access denied. Contact your administrator if you believe this is a mistake."

var userMessages = map[Code]string{
	Malformed:            "Your session could not be verified. Please sign in again.",
	UnknownKey:           "Your session could not be verified. Please sign in again.",
	BadSignature:         "Your session could not be verified. Please sign in again.",
	Expired:              "Your session has expired. Please sign in again.",
	ClaimMismatch:        "Your session could not be verified. Please sign in again.",
	KeyFetchFailed:       "Sign-in is temporarily unavailable. Please try again shortly.",
	MissingToken:         "Your request could not be authenticated.",
	AllowListDenied:      GenericDenial,
	AllowListTimeout:     GenericDenial,
	CredentialInvalid:    "The sign-in link or credentials are invalid or have expired.",
	AdapterPersistFailed: "We could not complete your sign-in. Please try again.",
}

// UserMessage devuelve el texto apto para el usuario final.
func UserMessage(c Code) string {
	if m, ok := userMessages[c]; ok {
		return m
	}
	return GenericDenial
}

// String implementa fmt.Stringer.
func (c Code) String() string { return string(c) }

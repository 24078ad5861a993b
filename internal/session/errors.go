package session

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/portalgate/internal/domain/reason"
)

var (
	// ErrSessionNotFound la sesión no existe o ya se cerró.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired la sesión venció; ya fue eliminada.
	ErrSessionExpired = errors.New("session: expired")
	// ErrProviderNotConfigured no hay proveedor para ese tipo de credencial.
	ErrProviderNotConfigured = errors.New("session: provider not configured")
)

// Rejection es el resultado de un sign-in que terminó en rejected.
// Reason es para auditoría; el texto para el usuario lo arma la capa HTTP.
type Rejection struct {
	Attempt *Attempt
	Reason  reason.Code
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("sign-in rejected: %s: %v", r.Reason, r.Err)
	}
	return "sign-in rejected: " + string(r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// AsRejection extrae la Rejection de err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}

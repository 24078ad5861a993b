package jwt

import (
	"errors"
	"fmt"

	"github.com/dropDatabas3/portalgate/internal/domain/reason"
)

// ErrKeyFetchFailed indica que no hay KeySet utilizable: el fetch falló y no queda
// last-known-good dentro del período de gracia.
var ErrKeyFetchFailed = errors.New("jwks: key fetch failed")

// VerificationError es la falla clasificada de Verify.
type VerificationError struct {
	Code reason.Code
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "jwt: " + string(e.Code)
	}
	return fmt.Sprintf("jwt: %s: %v", e.Code, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func verr(code reason.Code, err error) *VerificationError {
	return &VerificationError{Code: code, Err: err}
}

// CodeOf extrae el código de rechazo de un error de Verify.
// Un error no clasificado se reporta como malformed (fail-closed).
func CodeOf(err error) reason.Code {
	if err == nil {
		return ""
	}
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	if errors.Is(err, ErrKeyFetchFailed) {
		return reason.KeyFetchFailed
	}
	return reason.Malformed
}

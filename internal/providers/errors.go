// Package providers agrupa los proveedores de credenciales del sign-in
// (magic-link, admin estático, SSO delegado). Cada uno vive en su subpaquete.
package providers

import "errors"

// ErrInvalidCredential la credencial no es válida. Los proveedores no dicen por
// qué hacia afuera; el detalle va al log.
var ErrInvalidCredential = errors.New("invalid credential")

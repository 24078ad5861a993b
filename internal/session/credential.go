package session

import "github.com/dropDatabas3/portalgate/internal/domain/repository"

// Credential es la unión cerrada de credenciales de sign-in: EmailLink,
// StaticCredential o DelegatedSSO. No se puede implementar fuera del paquete.
type Credential interface {
	Kind() repository.CredentialKind
	attemptID() string
	sealed()
}

// EmailLink es un magic-link canjeado.
type EmailLink struct {
	Email     string
	Token     string
	AttemptID string
}

// StaticCredential es el usuario/contraseña del admin configurado.
type StaticCredential struct {
	Username  string
	Password  string
	AttemptID string
}

// DelegatedSSO es una aserción ya autenticada por el proveedor externo (ID token).
type DelegatedSSO struct {
	Assertion string
	AttemptID string
}

func (EmailLink) Kind() repository.CredentialKind        { return repository.KindEmailLink }
func (StaticCredential) Kind() repository.CredentialKind { return repository.KindStaticCredential }
func (DelegatedSSO) Kind() repository.CredentialKind     { return repository.KindDelegatedSSO }

func (c EmailLink) attemptID() string        { return c.AttemptID }
func (c StaticCredential) attemptID() string { return c.AttemptID }
func (c DelegatedSSO) attemptID() string     { return c.AttemptID }

func (EmailLink) sealed()        {}
func (StaticCredential) sealed() {}
func (DelegatedSSO) sealed()     {}

// VerifiedIdentity es lo que un proveedor devuelve al aceptar una credencial.
type VerifiedIdentity struct {
	Email   string
	Subject string // id externo, si el proveedor lo tiene
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CredentialKind es el origen de la credencial con la que se autenticó la identidad.
type CredentialKind string

const (
	KindEmailLink        CredentialKind = "email-link"
	KindStaticCredential CredentialKind = "static-credential"
	KindDelegatedSSO     CredentialKind = "delegated-sso"
)

// Valid reporta si k es uno de los tres kinds conocidos.
func (k CredentialKind) Valid() bool {
	switch k {
	case KindEmailLink, KindStaticCredential, KindDelegatedSSO:
		return true
	}
	return false
}

// Identity es la persona detrás de una sesión, keyed por email.
type Identity struct {
	Email             string
	CredentialKind    CredentialKind
	AllowListApproved bool
	ApprovedBy        string // "allow-list" | "configuration"
	CreatedAt         time.Time
	LastSignInAt      time.Time
}

// NormalizeEmail es la forma canónica de la clave de Identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate chequea los campos obligatorios.
func (i Identity) Validate() error {
	if i.Email == "" || !strings.Contains(i.Email, "@") {
		return fmt.Errorf("%w: identity email %q", ErrInvalidInput, i.Email)
	}
	if !i.CredentialKind.Valid() {
		return fmt.Errorf("%w: credential kind %q", ErrInvalidInput, i.CredentialKind)
	}
	return nil
}

// IdentityRepository operaciones sobre identidades.
type IdentityRepository interface {
	// CreateIdentity inserta una identidad nueva. ErrConflict si el email ya existe.
	CreateIdentity(ctx context.Context, id Identity) error

	// FindIdentity busca por email (normalizado). ErrNotFound si no existe.
	FindIdentity(ctx context.Context, email string) (*Identity, error)
}

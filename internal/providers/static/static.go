// Package static autentica la única identidad admin configurada.
package static

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/providers"
	"github.com/dropDatabas3/portalgate/internal/security/password"
	tokens "github.com/dropDatabas3/portalgate/internal/security/token"
	"github.com/dropDatabas3/portalgate/internal/session"
)

type Config struct {
	Username string
	// Password es un PHC argon2id o, sólo en dev, texto plano.
	Password string
	Email    string
}

type Authenticator struct {
	username string
	secret   string
	hashed   bool
	email    string
}

func New(cfg Config) (*Authenticator, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("static: username and password required")
	}
	email := repository.NormalizeEmail(cfg.Email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("static: invalid admin email %q", cfg.Email)
	}
	return &Authenticator{
		username: cfg.Username,
		secret:   cfg.Password,
		hashed:   password.IsHash(cfg.Password),
		email:    email,
	}, nil
}

// Hashed reporta si la contraseña configurada es un hash (y no texto plano).
func (a *Authenticator) Hashed() bool { return a.hashed }

func (a *Authenticator) Authenticate(_ context.Context, username, pass string) (session.VerifiedIdentity, error) {
	// siempre evaluamos ambas comparaciones
	userOK := tokens.ConstantTimeEqual(username, a.username)
	var passOK bool
	if a.hashed {
		passOK = password.Verify(pass, a.secret)
	} else {
		passOK = tokens.ConstantTimeEqual(pass, a.secret)
	}
	if !userOK || !passOK {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	return session.VerifiedIdentity{Email: a.email, Subject: a.username}, nil
}

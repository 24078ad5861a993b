package session

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
)

// tokenCodec traduce entre la sesión persistida y lo que se entrega al cliente.
type tokenCodec interface {
	Issue(s repository.Session) (string, error)
	// SessionID resuelve el ID de sesión de un token. allowExpired se usa en
	// sign-out: cerrar una sesión vencida no debe fallar.
	SessionID(token string, allowExpired bool) (string, error)
}

// =================================================================================
// STORED
// =================================================================================

// storedCodec entrega el session ID opaco.
type storedCodec struct{}

func (storedCodec) Issue(s repository.Session) (string, error) { return s.ID, nil }

func (storedCodec) SessionID(token string, _ bool) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		return "", ErrSessionNotFound
	}
	return token, nil
}

// =================================================================================
// STATELESS-SIGNED
// =================================================================================

const minSigningSecret = 32

type sessionClaims struct {
	jwtv5.RegisteredClaims
	Label    string `json:"label"`
	Strategy string `json:"stg"`
}

// SignedCodec emite sesiones como JWT HS256 (sid, sub=email, label, exp).
// La fila sigue existiendo en el store: un token firmado de una sesión
// eliminada no se acepta.
type SignedCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSignedCodec requiere un secreto de al menos 32 bytes.
func NewSignedCodec(secret []byte, issuer string, now func() time.Time) (*SignedCodec, error) {
	if len(secret) < minSigningSecret {
		return nil, fmt.Errorf("session: signing secret must be at least %d bytes", minSigningSecret)
	}
	if now == nil {
		now = time.Now
	}
	return &SignedCodec{secret: append([]byte(nil), secret...), issuer: issuer, now: now}, nil
}

func (c *SignedCodec) Issue(s repository.Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        s.ID,
			Subject:   s.IdentityEmail,
			Issuer:    c.issuer,
			IssuedAt:  jwtv5.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwtv5.NewNumericDate(s.ExpiresAt),
		},
		Label:    s.Label,
		Strategy: string(repository.StrategyStatelessSigned),
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *SignedCodec) SessionID(token string, allowExpired bool) (string, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithTimeFunc(c.now),
	}
	if allowExpired {
		opts = append(opts, jwtv5.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwtv5.WithExpirationRequired(), jwtv5.WithIssuer(c.issuer))
	}

	var claims sessionClaims
	_, err := jwtv5.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwtv5.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return "", ErrSessionExpired
	default:
		return "", fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if claims.ID == "" {
		return "", ErrSessionNotFound
	}
	return claims.ID, nil
}

package jwt

import "time"

// AnonymousSubject es el sub reservado para tokens pass-through sin usuario.
const AnonymousSubject = "anonymous"

// TokenClaims son los claims verificados de un bearer token. Viven un request.
type TokenClaims struct {
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time // zero si el token no trae iat
	ExpiresAt time.Time
	KeyID     string
	Raw       map[string]any
}

// Email devuelve el claim "email" si existe como string.
func (c *TokenClaims) Email() string {
	if c == nil {
		return ""
	}
	s, _ := c.Raw["email"].(string)
	return s
}

// EmailVerified reporta el claim "email_verified" (bool o "true").
func (c *TokenClaims) EmailVerified() bool {
	if c == nil {
		return false
	}
	switch v := c.Raw["email_verified"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

package helpers

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig de la cookie de sesión.
type CookieConfig struct {
	Name     string
	Domain   string
	SameSite string // lax | strict | none
	Secure   bool
}

func ParseSameSite(s string) http.SameSite {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func BuildCookie(cfg CookieConfig, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: ParseSameSite(cfg.SameSite),
	}
	if strings.TrimSpace(cfg.Domain) != "" {
		ck.Domain = cfg.Domain
	}
	if ttl > 0 {
		ck.Expires = time.Now().Add(ttl).UTC()
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

func BuildDeletionCookie(cfg CookieConfig) *http.Cookie {
	ck := BuildCookie(cfg, "", 0)
	ck.Expires = time.Unix(0, 0).UTC()
	ck.MaxAge = -1
	return ck
}

// SessionHeader alternativa a la cookie para clientes no-browser.
const SessionHeader = "X-Session-Token"

// SessionToken lee el token de sesión: header primero, después cookie.
func SessionToken(r *http.Request, cookieName string) (string, bool) {
	if v := strings.TrimSpace(r.Header.Get(SessionHeader)); v != "" {
		return v, true
	}
	if ck, err := r.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return "", false
}

// Package admission decide, por request, si una ruta protegida se atiende.
//
// El gate es una función de decisión pura sobre el bearer token: no escribe la
// respuesta (eso lo hace el middleware HTTP) y su único estado compartido es el
// cache de claves que vive detrás del verificador.
package admission

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/jwt"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

// Outcome resultado de una admisión.
type Outcome string

const (
	Allow          Outcome = "allow"
	RedirectToAuth Outcome = "redirect_to_auth"
	Reject         Outcome = "reject"
)

// Decision es lo que el gate resuelve para un request.
// Claims sólo está presente en Allow; Reason sólo en Reject.
type Decision struct {
	Outcome Outcome
	Claims  *jwt.TokenClaims
	Reason  reason.Code
}

// TokenVerifier es la parte del verificador que usa el gate.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*jwt.TokenClaims, error)
}

// Config del gate.
type Config struct {
	// AnonymousSubject sub que significa "todavía no logueado" (default "anonymous").
	AnonymousSubject string
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

// Gate aplica la política de admisión.
type Gate struct {
	verifier  TokenVerifier
	anonymous string
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewGate crea un Gate sobre v.
func NewGate(v TokenVerifier, cfg Config) *Gate {
	g := &Gate{
		verifier:  v,
		anonymous: cfg.AnonymousSubject,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
	if g.anonymous == "" {
		g.anonymous = jwt.AnonymousSubject
	}
	if g.log == nil {
		g.log = logger.Named("admission")
	}
	return g
}

// Admit decide sobre r. Sin bearer token falla cerrado con missing_token:
// el proxy upstream siempre adjunta uno, incluso para usuarios anónimos.
func (g *Gate) Admit(r *http.Request) Decision {
	raw, ok := BearerToken(r)
	if !ok {
		return g.decide(r, Decision{Outcome: Reject, Reason: reason.MissingToken})
	}

	claims, err := g.verifier.Verify(r.Context(), raw)
	if err != nil {
		d := Decision{Outcome: Reject, Reason: jwt.CodeOf(err)}
		g.log.Debug("token verification failed", logger.Reason(string(d.Reason)), logger.Err(err))
		return g.decide(r, d)
	}
	if claims.Subject == g.anonymous {
		return g.decide(r, Decision{Outcome: RedirectToAuth})
	}
	return g.decide(r, Decision{Outcome: Allow, Claims: claims})
}

func (g *Gate) decide(r *http.Request, d Decision) Decision {
	g.metrics.ObserveAdmission(string(d.Outcome), string(d.Reason))

	log := logger.From(r.Context())
	switch d.Outcome {
	case Reject:
		log.Info("admission rejected",
			logger.Component("admission"),
			logger.Outcome(string(d.Outcome)),
			logger.Reason(string(d.Reason)),
			logger.Path(r.URL.Path),
		)
	case Allow:
		log.Debug("admission allowed",
			logger.Component("admission"),
			logger.Subject(d.Claims.Subject),
			logger.Path(r.URL.Path),
		)
	default:
		log.Debug("admission redirected", logger.Component("admission"), logger.Path(r.URL.Path))
	}
	return d
}

// BearerToken extrae el token de "Authorization: Bearer <token>".
// El esquema es case-insensitive; un token vacío cuenta como ausente.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	if tok == "" {
		return "", false
	}
	return tok, true
}

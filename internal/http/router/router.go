// Package router arma el árbol de rutas chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/portalgate/internal/http/controllers/api"
	authctrl "github.com/dropDatabas3/portalgate/internal/http/controllers/auth"
	"github.com/dropDatabas3/portalgate/internal/http/controllers/health"
	"github.com/dropDatabas3/portalgate/internal/http/errors"
	mw "github.com/dropDatabas3/portalgate/internal/http/middlewares"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/rate"
)

const maxSignInBody = 64 << 10

type Deps struct {
	Auth   *authctrl.Controller
	Health *health.Controller

	// Gate protege /api/*. SignInURL recibe los redirect_to_auth.
	Gate      mw.Admitter
	SignInURL string

	// Limiter opcional para las rutas de sign-in. TrustedProxies define de
	// quién se acepta X-Forwarded-For para la clave.
	Limiter        rate.Limiter
	TrustedProxies mw.TrustedProxies

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler // nil = sin /metrics
	CORSOrigins    []string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
		mw.WithMetrics(d.Metrics),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		errors.WriteError(w, errors.ErrMethodNotAllowed)
	})

	// ─── Health / metrics ───
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	// ─── Auth ───
	if d.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Use(mw.WithNoStore())

			r.Group(func(r chi.Router) {
				r.Use(mw.WithRateLimit(d.Limiter, mw.IPPathRateKey(d.TrustedProxies)), mw.WithMaxBody(maxSignInBody))
				if d.Auth.MagicLinksEnabled() {
					r.Post("/magic-link", d.Auth.RequestMagicLink)
				}
				r.Post("/magic-link/redeem", d.Auth.RedeemMagicLink)
				r.Post("/admin/login", d.Auth.AdminLogin)
				r.Post("/sso/callback", d.Auth.SSOCallback)
			})

			r.Get("/session", d.Auth.GetSession)
			r.Post("/logout", d.Auth.Logout)
		})
	}

	// ─── API protegida ───
	if d.Gate != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(mw.WithNoStore(), mw.RequireAdmission(d.Gate, d.SignInURL))
			r.Get("/whoami", api.WhoAmI)
		})
	}

	return r
}

// Package sso acepta el ID token OIDC que el proveedor externo ya emitió.
//
// Usa su propio KeyCache y Verifier (issuer/audience del cliente SSO, no los del
// gate de admisión) y exige un email verificado.
package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/jwt"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/providers"
	"github.com/dropDatabas3/portalgate/internal/session"
)

type Config struct {
	JWKSURL  string
	Issuer   string
	Audience []string // client_id(s)

	// AllowUnverifiedEmail acepta tokens sin email_verified=true. Sólo para IdPs
	// que no emiten el claim.
	AllowUnverifiedEmail bool

	KeyTTL            time.Duration
	AllowInsecureHTTP bool
	HTTPClient        *http.Client
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Now               func() time.Time
}

type Provider struct {
	keys            *jwt.KeyCache
	verifier        *jwt.Verifier
	allowUnverified bool
	log             *zap.Logger
}

func New(cfg Config) (*Provider, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Named("sso")
	}
	keys, err := jwt.NewKeyCache(jwt.KeyCacheConfig{
		URL:               cfg.JWKSURL,
		TTL:               cfg.KeyTTL,
		AllowInsecureHTTP: cfg.AllowInsecureHTTP,
		HTTPClient:        cfg.HTTPClient,
		Metrics:           cfg.Metrics,
		Logger:            log.Named("jwks"),
		Now:               cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("sso: %w", err)
	}
	v, err := jwt.NewVerifier(keys, jwt.VerifierConfig{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Now:      cfg.Now,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("sso: %w", err)
	}
	return &Provider{keys: keys, verifier: v, allowUnverified: cfg.AllowUnverifiedEmail, log: log}, nil
}

// Run mantiene las claves del IdP precargadas hasta que ctx termine.
func (p *Provider) Run(ctx context.Context) { p.keys.Run(ctx) }

func (p *Provider) VerifyAssertion(ctx context.Context, assertion string) (session.VerifiedIdentity, error) {
	claims, err := p.verifier.Verify(ctx, assertion)
	if err != nil {
		if errors.Is(err, jwt.ErrKeyFetchFailed) {
			// el IdP no responde: no es culpa de la credencial
			return session.VerifiedIdentity{}, err
		}
		logger.From(ctx).Info("sso assertion rejected",
			logger.Component("sso"),
			logger.Reason(string(jwt.CodeOf(err))),
		)
		return session.VerifiedIdentity{}, fmt.Errorf("%w: %v", providers.ErrInvalidCredential, err)
	}
	if claims.Subject == jwt.AnonymousSubject {
		return session.VerifiedIdentity{}, fmt.Errorf("%w: anonymous subject", providers.ErrInvalidCredential)
	}
	addr := claims.Email()
	if addr == "" {
		return session.VerifiedIdentity{}, fmt.Errorf("%w: no email claim", providers.ErrInvalidCredential)
	}
	if !p.allowUnverified && !claims.EmailVerified() {
		return session.VerifiedIdentity{}, fmt.Errorf("%w: email not verified", providers.ErrInvalidCredential)
	}
	return session.VerifiedIdentity{Email: addr, Subject: claims.Subject}, nil
}

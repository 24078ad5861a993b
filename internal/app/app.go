// Package app arma el proceso: config → stores → verifier/gates → orquestador → router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/portalgate/internal/admission"
	"github.com/dropDatabas3/portalgate/internal/allowlist"
	"github.com/dropDatabas3/portalgate/internal/cache"
	"github.com/dropDatabas3/portalgate/internal/config"
	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/email"
	authctrl "github.com/dropDatabas3/portalgate/internal/http/controllers/auth"
	"github.com/dropDatabas3/portalgate/internal/http/controllers/health"
	"github.com/dropDatabas3/portalgate/internal/http/helpers"
	"github.com/dropDatabas3/portalgate/internal/http/middlewares"
	"github.com/dropDatabas3/portalgate/internal/http/router"
	"github.com/dropDatabas3/portalgate/internal/http/server"
	"github.com/dropDatabas3/portalgate/internal/jwt"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/providers/magiclink"
	"github.com/dropDatabas3/portalgate/internal/providers/sso"
	"github.com/dropDatabas3/portalgate/internal/providers/static"
	"github.com/dropDatabas3/portalgate/internal/rate"
	"github.com/dropDatabas3/portalgate/internal/session"
	"github.com/dropDatabas3/portalgate/internal/store"
)

// App es el proceso cableado. Run sirve hasta que ctx termine; Close libera
// conexiones.
type App struct {
	Handler http.Handler
	Server  *http.Server

	cfg     *config.Config
	log     *zap.Logger
	keys    *jwt.KeyCache
	sso     *sso.Provider
	store   repository.Store
	cache   cache.Client
	metrics *metrics.Metrics
	closers []func() error
}

// NewVerifier arma KeyCache + Verifier del IdP. Lo usa también verify-token.
func NewVerifier(cfg *config.Config, m *metrics.Metrics) (*jwt.KeyCache, *jwt.Verifier, error) {
	log := logger.Named("jwks")
	keys, err := jwt.NewKeyCache(jwt.KeyCacheConfig{
		URL:                cfg.IdP.JWKSURL,
		TTL:                cfg.KeyTTL(),
		StaleGrace:         cfg.StaleGrace(),
		MinRefreshInterval: cfg.MinRefreshInterval(),
		FetchTimeout:       cfg.FetchTimeout(),
		AllowInsecureHTTP:  cfg.IdP.AllowInsecureHTTP,
		Metrics:            m,
		Logger:             log,
	})
	if err != nil {
		return nil, nil, err
	}
	v, err := jwt.NewVerifier(keys, jwt.VerifierConfig{
		Issuer:   cfg.IdP.Issuer,
		Audience: cfg.IdP.Audience,
		Logger:   logger.Named("verifier"),
	})
	if err != nil {
		return nil, nil, err
	}
	return keys, v, nil
}

// New construye todo. Si algo falla cierra lo que ya se abrió.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{cfg: cfg, log: logger.Named("app")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ─── Métricas ───
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	a.metrics = m

	// ─── Persistencia ───
	a.store, err = store.Open(ctx, store.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxConns:     int32(cfg.Storage.MaxConns),
		EnsureSchema: cfg.Storage.EnsureSchema,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	// ─── Cache + rate limit (comparten la conexión Redis) ───
	var limiter rate.Limiter
	cacheCfg := cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	}
	if cfg.Cache.Driver == "redis" {
		rdb, derr := cache.DialRedis(ctx, cacheCfg)
		if derr != nil {
			return nil, derr
		}
		a.cache = cache.NewRedis(rdb, cfg.Cache.Prefix)
		if cfg.Rate.Enabled {
			limiter = rate.NewRedisLimiter(rdb, cfg.Cache.Prefix+":rl:", cfg.Rate.Limit, cfg.RateWindow())
		}
	} else {
		a.cache, err = cache.New(ctx, cacheCfg)
		if err != nil {
			return nil, err
		}
		if cfg.Rate.Enabled {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, cfg.RateWindow())
		}
	}
	a.closers = append(a.closers, a.cache.Close)

	// ─── Admisión ───
	var verifier *jwt.Verifier
	a.keys, verifier, err = NewVerifier(cfg, m)
	if err != nil {
		return nil, err
	}
	gate := admission.NewGate(verifier, admission.Config{
		AnonymousSubject: cfg.IdP.AnonymousSubject,
		Metrics:          m,
		Logger:           logger.Named("admission"),
	})

	// ─── Allow-list ───
	allow, err := allowlist.New(allowlist.Config{
		URL:         cfg.AllowList.URL,
		Timeout:     cfg.AllowListTimeout(),
		PositiveTTL: cfg.PositiveCacheTTL(),
		Cache:       a.cache,
		Metrics:     m,
		Logger:      logger.Named("allowlist"),
	})
	if err != nil {
		return nil, err
	}

	// ─── Proveedores ───
	scfg := session.Config{
		Store:         a.store,
		AllowList:     allow,
		Strategy:      repository.Strategy(cfg.Session.Strategy),
		SessionTTL:    cfg.SessionTTL(),
		SigningSecret: []byte(cfg.Session.SigningSecret),
		Issuer:        cfg.Session.Issuer,
		Metrics:       m,
		Logger:        logger.Named("session"),
	}

	var issuer authctrl.MagicLinkIssuer
	if cfg.MagicLink.Enabled {
		sender, serr := a.newSender()
		if serr != nil {
			return nil, serr
		}
		ml, merr := magiclink.New(magiclink.Config{
			Cache:     a.cache,
			Sender:    sender,
			RedeemURL: cfg.MagicLink.RedeemURL,
			TTL:       cfg.MagicLinkTTL(),
			Logger:    logger.Named("magiclink"),
		})
		if merr != nil {
			return nil, merr
		}
		scfg.MagicLinks = ml
		issuer = ml
	}

	if cfg.Admin.Username != "" {
		admin, aerr := static.New(static.Config{
			Username: cfg.Admin.Username,
			Password: cfg.Admin.Password,
			Email:    cfg.Admin.Email,
		})
		if aerr != nil {
			return nil, aerr
		}
		if !admin.Hashed() {
			a.log.Warn("admin password configured in plaintext; use `portalgate hash-password`")
		}
		scfg.Admin = admin
	}

	if cfg.SSO.Enabled {
		a.sso, err = sso.New(sso.Config{
			JWKSURL:              cfg.SSO.JWKSURL,
			Issuer:               cfg.SSO.Issuer,
			Audience:             cfg.SSO.ClientIDs,
			AllowUnverifiedEmail: cfg.SSO.AllowUnverifiedEmail,
			KeyTTL:               cfg.KeyTTL(),
			AllowInsecureHTTP:    cfg.SSO.AllowInsecureHTTP,
			Metrics:              m,
			Logger:               logger.Named("sso"),
		})
		if err != nil {
			return nil, err
		}
		scfg.SSO = a.sso
	}

	orch, err := session.New(scfg)
	if err != nil {
		return nil, err
	}

	// ─── HTTP ───
	auth := authctrl.NewController(orch, issuer, helpers.CookieConfig{
		Name:     cfg.Session.Cookie.Name,
		Domain:   cfg.Session.Cookie.Domain,
		SameSite: cfg.Session.Cookie.SameSite,
		Secure:   cfg.Session.Cookie.Secure,
	})
	hc := health.NewController(map[string]health.Check{
		"store": a.store.Ping,
		"cache": a.cache.Ping,
		"jwks": func(ctx context.Context) error {
			_, err := a.keys.Get(ctx)
			return err
		},
	})

	var metricsHandler http.Handler
	if cfg.Server.Metrics {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	trusted, err := middlewares.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}
	a.Handler = router.New(router.Deps{
		Auth:           auth,
		Health:         hc,
		Gate:           gate,
		SignInURL:      cfg.Server.SignInURL,
		Limiter:        limiter,
		TrustedProxies: trusted,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		CORSOrigins:    cfg.Server.CORSAllowedOrigins,
	})
	a.Server = server.New(server.Config{Addr: cfg.Server.Addr, ShutdownTimeout: cfg.ShutdownTimeout()}, a.Handler)

	a.log.Info("portalgate wired",
		zap.String("strategy", string(scfg.Strategy)),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.Bool("magic_link", cfg.MagicLink.Enabled),
		zap.Bool("admin", scfg.Admin != nil),
		zap.Bool("sso", cfg.SSO.Enabled),
		zap.Bool("rate_limit", limiter != nil),
	)
	return a, nil
}

func (a *App) newSender() (email.Sender, error) {
	c := a.cfg.SMTP
	if c.Driver == "log" {
		return email.LogSender{Logger: logger.Named("email")}, nil
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:               c.Host,
		Port:               c.Port,
		From:               c.From,
		User:               c.Username,
		Pass:               c.Password,
		TLSMode:            c.TLS,
		InsecureSkipVerify: c.InsecureSkipVerify,
	})
}

// Run sirve HTTP y corre los loops de fondo (prefetch JWKS, janitor) hasta
// que ctx termine.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { a.keys.Run(ctx); return nil })
	if a.sso != nil {
		g.Go(func() error { a.sso.Run(ctx); return nil })
	}
	g.Go(func() error { store.RunJanitor(ctx, a.store, a.cfg.JanitorInterval(), a.metrics); return nil })
	g.Go(func() error { return server.Run(ctx, a.Server, a.cfg.ShutdownTimeout()) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// Close libera store y cache en orden inverso de apertura.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package allowlist consulta al servicio externo que confirma si un email puede
// tener cuenta. Falla cerrado: cualquier error de red o timeout es un rechazo.
package allowlist

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/cache"
	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

const cacheKeyPrefix = "allowlist:ok:"

// Config del gate.
type Config struct {
	// URL del callback (POST).
	URL string

	// Timeout de cada llamada. Obligatorio (> 0).
	Timeout time.Duration

	// PositiveTTL cachea aprobaciones. 0 = sin cache. Nunca debe superar la
	// duración de una sesión; los rechazos nunca se cachean.
	PositiveTTL time.Duration
	Cache       cache.Client

	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Result de un chequeo. Reason vacío si Allowed.
type Result struct {
	Allowed bool
	Reason  reason.Code
}

// Gate consulta el allow-list externo.
type Gate struct {
	url         string
	timeout     time.Duration
	positiveTTL time.Duration
	cache       cache.Client
	client      *http.Client
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// New valida cfg y crea el gate.
func New(cfg Config) (*Gate, error) {
	if cfg.URL == "" {
		return nil, errors.New("allowlist: url is required")
	}
	if u, err := url.Parse(cfg.URL); err != nil || u.Host == "" {
		return nil, fmt.Errorf("allowlist: invalid url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("allowlist: timeout must be > 0")
	}
	if cfg.PositiveTTL > 0 && cfg.Cache == nil {
		return nil, errors.New("allowlist: positive cache requires a cache client")
	}
	g := &Gate{
		url:         cfg.URL,
		timeout:     cfg.Timeout,
		positiveTTL: cfg.PositiveTTL,
		cache:       cfg.Cache,
		client:      cfg.HTTPClient,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
	}
	if g.client == nil {
		// un 3xx es una respuesta distinta de 200: se rechaza, no se sigue
		g.client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	if g.log == nil {
		g.log = logger.Named("allowlist")
	}
	return g, nil
}

// checkRequest es el body del callback. transient_payload es un punto de
// extensión reservado: siempre presente y vacío.
type checkRequest struct {
	Email            string   `json:"email"`
	TransientPayload struct{} `json:"transient_payload"`
}

// IsAllowed es Check reducido a bool.
func (g *Gate) IsAllowed(ctx context.Context, email string) bool {
	return g.Check(ctx, email).Allowed
}

// Check consulta si email está permitido. Un 200 es aprobación; cualquier otro
// status es allow_list_denied; error de red o timeout es allow_list_timeout.
func (g *Gate) Check(ctx context.Context, email string) Result {
	email = strings.TrimSpace(email)
	log := logger.From(ctx).With(logger.Component("allowlist"), logger.EmailDomain(email))

	if g.cachedApproval(ctx, email) {
		g.metrics.ObserveAllowList("cache_hit", 0)
		log.Debug("allow-list approval served from cache")
		return Result{Allowed: true}
	}

	start := time.Now()
	res, err := g.call(ctx, email)
	took := time.Since(start)

	switch {
	case err != nil:
		g.metrics.ObserveAllowList("timeout", took)
		log.Warn("allow-list call failed", logger.Reason(string(reason.AllowListTimeout)), logger.DurationMs(took), logger.Err(err))
	case res.Allowed:
		g.metrics.ObserveAllowList("allowed", took)
		g.rememberApproval(ctx, email)
	default:
		g.metrics.ObserveAllowList("denied", took)
		log.Info("allow-list denied", logger.Reason(string(res.Reason)), logger.DurationMs(took))
	}
	return res
}

func (g *Gate) call(ctx context.Context, email string) (Result, error) {
	body, err := json.Marshal(checkRequest{Email: email})
	if err != nil {
		return Result{Reason: reason.AllowListTimeout}, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Result{Reason: reason.AllowListTimeout}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{Reason: reason.AllowListTimeout}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusOK {
		return Result{Allowed: true}, nil
	}
	return Result{Reason: reason.AllowListDenied}, nil
}

// =================================================================================
// CACHE POSITIVO
// =================================================================================

func cacheKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (g *Gate) cachedApproval(ctx context.Context, email string) bool {
	if g.positiveTTL <= 0 {
		return false
	}
	_, err := g.cache.Get(ctx, cacheKey(email))
	if err != nil && !cache.IsNotFound(err) {
		g.log.Warn("allow-list cache read failed", logger.Err(err))
	}
	return err == nil
}

func (g *Gate) rememberApproval(ctx context.Context, email string) {
	if g.positiveTTL <= 0 {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(email), "1", g.positiveTTL); err != nil {
		g.log.Warn("allow-list cache write failed", logger.Err(err))
	}
}

package jwt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

const (
	defaultKeyTTL       = 10 * time.Minute
	defaultStaleGrace   = time.Hour
	defaultRetryBackoff = 5 * time.Second
	defaultFetchTimeout = 5 * time.Second

	maxJWKSBytes = 1 << 20
	sfKey        = "jwks"
)

// KeyCacheConfig configura el cache de claves del IdP.
type KeyCacheConfig struct {
	// URL del endpoint JWKS (https salvo AllowInsecureHTTP).
	URL string

	// TTL ventana de frescura de un KeySet (default 10m).
	TTL time.Duration

	// StaleGrace cuánto tiempo después de ValidUntil se sigue sirviendo el
	// last-known-good si el IdP no responde (default 1h).
	StaleGrace time.Duration

	// RetryBackoff pausa entre reintentos mientras se sirven claves stale (default 5s).
	RetryBackoff time.Duration

	// MinRefreshInterval limita los refresh forzados por Invalidate. 0 = sin límite.
	MinRefreshInterval time.Duration

	// FetchTimeout timeout de cada GET al JWKS (default 5s).
	FetchTimeout time.Duration

	// PrefetchInterval período de Run (default TTL/2).
	PrefetchInterval time.Duration

	// AllowInsecureHTTP permite http:// (tests y desarrollo local).
	AllowInsecureHTTP bool

	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// Now reloj inyectable para tests.
	Now func() time.Time
}

// KeyCache mantiene el KeySet vigente del IdP.
//
// Lecturas sin lock (atomic.Pointer); refreshes serializados con singleflight: todos
// los callers concurrentes reciben el mismo KeySet o el mismo error.
type KeyCache struct {
	cfg    KeyCacheConfig
	client *http.Client
	log    *zap.Logger
	now    func() time.Time

	current atomic.Pointer[KeySet]
	sf      singleflight.Group

	mu          sync.Mutex
	forced      bool
	lastAttempt time.Time
	lastFailure time.Time
}

// NewKeyCache valida la config y crea el cache. No hace fetch: el primer Get
// (o Run) carga las claves.
func NewKeyCache(cfg KeyCacheConfig) (*KeyCache, error) {
	if cfg.URL == "" {
		return nil, errors.New("jwks: url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("jwks: invalid url %q", cfg.URL)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("jwks: url must be https: %q", cfg.URL)
		}
	default:
		return nil, fmt.Errorf("jwks: unsupported scheme %q", u.Scheme)
	}

	if cfg.TTL <= 0 {
		cfg.TTL = defaultKeyTTL
	}
	if cfg.StaleGrace < 0 {
		cfg.StaleGrace = 0
	} else if cfg.StaleGrace == 0 {
		cfg.StaleGrace = defaultStaleGrace
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.PrefetchInterval <= 0 {
		cfg.PrefetchInterval = cfg.TTL / 2
	}

	c := &KeyCache{
		cfg:    cfg,
		client: cfg.HTTPClient,
		log:    cfg.Logger,
		now:    cfg.Now,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if c.log == nil {
		c.log = logger.Named("jwks")
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.log = c.log.With(logger.URL(cfg.URL))
	return c, nil
}

// Get devuelve el KeySet vigente, refrescándolo si está vencido o invalidado.
func (c *KeyCache) Get(ctx context.Context) (*KeySet, error) {
	if ks := c.current.Load(); ks != nil && !c.needsRefresh(ks, c.now()) {
		return ks, nil
	}

	// El fetch corre con su propio timeout; cada caller sólo espera mientras su ctx viva.
	ch := c.sf.DoChan(sfKey, func() (any, error) { return c.refresh() })
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, ctx.Err())
	}
}

// Invalidate fuerza que el próximo Get ignore el cache (señal de rotación).
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	c.forced = true
	c.mu.Unlock()
	c.cfg.Metrics.ObserveInvalidation()
}

// Current devuelve el KeySet publicado sin disparar fetch (nil si nunca cargó).
func (c *KeyCache) Current() *KeySet { return c.current.Load() }

// Run refresca periódicamente hasta que ctx termine. Las fallas sólo se loguean:
// la verificación en el request path nunca espera a este loop.
func (c *KeyCache) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.PrefetchInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// refresh ya loguea y registra métricas
			_, _, _ = c.sf.Do(sfKey, func() (any, error) { return c.refresh() })
		}
	}
}

func (c *KeyCache) needsRefresh(ks *KeySet, now time.Time) bool {
	// Pasado el grace el set no se sirve más: ni el throttle lo retiene.
	if !now.Before(ks.ValidUntil.Add(c.cfg.StaleGrace)) {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		if c.cfg.MinRefreshInterval > 0 && now.Sub(c.lastAttempt) < c.cfg.MinRefreshInterval {
			return false
		}
		return true
	}
	if now.Before(ks.ValidUntil) {
		return false
	}
	// Vencido pero con una falla reciente: servir stale sin martillar al IdP.
	if !c.lastFailure.IsZero() && now.Sub(c.lastFailure) < c.cfg.RetryBackoff {
		return false
	}
	return true
}

func (c *KeyCache) refresh() (*KeySet, error) {
	now := c.now()
	c.mu.Lock()
	c.forced = false
	c.lastAttempt = now
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	ks, err := c.fetch(ctx, now)
	if err == nil {
		c.current.Store(ks)
		c.mu.Lock()
		c.lastFailure = time.Time{}
		c.mu.Unlock()
		c.cfg.Metrics.ObserveJWKSFetch("ok", ks.Len())
		c.log.Debug("jwks refreshed", logger.Count(ks.Len()), logger.Any("kids", ks.KIDs()))
		return ks, nil
	}

	c.mu.Lock()
	c.lastFailure = now
	c.mu.Unlock()

	if prev := c.current.Load(); prev != nil && now.Before(prev.ValidUntil.Add(c.cfg.StaleGrace)) {
		c.cfg.Metrics.ObserveJWKSFetch("stale", -1)
		c.log.Warn("jwks refresh failed, serving last-known-good",
			logger.Err(err),
			logger.Any("valid_until", prev.ValidUntil))
		return prev, nil
	}

	c.cfg.Metrics.ObserveJWKSFetch("error", -1)
	c.log.Error("jwks refresh failed, no usable key set", logger.Err(err))
	return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
}

func (c *KeyCache) fetch(ctx context.Context, now time.Time) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("jwks: read body: %w", err)
	}
	keys, skipped, err := ParseJWKS(body, now)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		c.log.Warn("jwks key skipped", logger.KeyID(s.KeyID), zap.Int("index", s.Index), logger.Reason(s.Reason))
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks: no usable signing keys")
	}
	return NewKeySet(keys, now, now.Add(c.cfg.TTL)), nil
}

// Package config carga la configuración desde YAML + variables PORTALGATE_*.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/portalgate/internal/security/password"
)

const envPrefix = "PORTALGATE_"

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
		// SignInURL recibe los redirect_to_auth del gate (con ?return_to=).
		SignInURL string `yaml:"sign_in_url"`
		Metrics   bool   `yaml:"metrics"`
		// TrustedProxies (IPs o CIDRs) son los únicos pares cuyo
		// X-Forwarded-For se usa para la IP del cliente.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	// IdP que firma los bearer tokens que presenta el proxy upstream.
	IdP struct {
		JWKSURL            string   `yaml:"jwks_url"`
		Issuer             string   `yaml:"issuer"`
		Audience           []string `yaml:"audience"`
		KeyTTL             string   `yaml:"key_ttl"`
		StaleGrace         string   `yaml:"stale_grace"`
		MinRefreshInterval string   `yaml:"min_refresh_interval"`
		FetchTimeout       string   `yaml:"fetch_timeout"`
		AnonymousSubject   string   `yaml:"anonymous_subject"`
		AllowInsecureHTTP  bool     `yaml:"allow_insecure_http"` // sólo dev
	} `yaml:"idp"`

	AllowList struct {
		URL              string `yaml:"url"`
		Timeout          string `yaml:"timeout"`
		PositiveCacheTTL string `yaml:"positive_cache_ttl"` // "" o "0s" = sin cache
	} `yaml:"allow_list"`

	Session struct {
		Strategy        string `yaml:"strategy"` // stored | stateless-signed
		TTL             string `yaml:"ttl"`
		SigningSecret   string `yaml:"signing_secret"`
		Issuer          string `yaml:"issuer"`
		JanitorInterval string `yaml:"janitor_interval"`
		Cookie          struct {
			Name     string `yaml:"name"`
			Domain   string `yaml:"domain"`
			SameSite string `yaml:"samesite"`
			Secure   bool   `yaml:"secure"`
		} `yaml:"cookie"`
	} `yaml:"session"`

	Storage struct {
		Driver       string `yaml:"driver"` // memory | postgres
		DSN          string `yaml:"dsn"`
		MaxConns     int    `yaml:"max_conns"`
		EnsureSchema bool   `yaml:"ensure_schema"`
	} `yaml:"storage"`

	Cache struct {
		Driver   string `yaml:"driver"` // memory | redis
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
	} `yaml:"rate"`

	// Admin estático. Los tres campos o ninguno.
	Admin struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"` // PHC argon2id; texto plano sólo fuera de prod
		Email    string `yaml:"email"`
	} `yaml:"admin"`

	MagicLink struct {
		Enabled   bool   `yaml:"enabled"`
		RedeemURL string `yaml:"redeem_url"`
		TTL       string `yaml:"ttl"`
	} `yaml:"magic_link"`

	SMTP struct {
		Driver             string `yaml:"driver"` // smtp | log
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	SSO struct {
		Enabled              bool     `yaml:"enabled"`
		JWKSURL              string   `yaml:"jwks_url"`
		Issuer               string   `yaml:"issuer"`
		ClientIDs            []string `yaml:"client_ids"`
		AllowUnverifiedEmail bool     `yaml:"allow_unverified_email"`
		AllowInsecureHTTP    bool     `yaml:"allow_insecure_http"`
	} `yaml:"sso"`
}

// Load lee path (opcional: "" usa sólo defaults + env), aplica overrides y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.IdP.KeyTTL == "" {
		c.IdP.KeyTTL = "10m"
	}
	if c.IdP.StaleGrace == "" {
		c.IdP.StaleGrace = "1h"
	}
	if c.IdP.MinRefreshInterval == "" {
		c.IdP.MinRefreshInterval = "30s"
	}
	if c.IdP.FetchTimeout == "" {
		c.IdP.FetchTimeout = "5s"
	}
	if c.IdP.AnonymousSubject == "" {
		c.IdP.AnonymousSubject = "anonymous"
	}
	if c.AllowList.Timeout == "" {
		c.AllowList.Timeout = "3s"
	}
	if c.Session.Strategy == "" {
		c.Session.Strategy = "stored"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "portalgate"
	}
	if c.Session.JanitorInterval == "" {
		c.Session.JanitorInterval = "10m"
	}
	if c.Session.Cookie.Name == "" {
		c.Session.Cookie.Name = "portal_session"
	}
	if c.Session.Cookie.SameSite == "" {
		c.Session.Cookie.SameSite = "lax"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "portalgate"
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 10
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.MagicLink.TTL == "" {
		c.MagicLink.TTL = "15m"
	}
	if c.SMTP.Driver == "" {
		c.SMTP.Driver = "smtp"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	// en prod las cookies siempre son Secure
	if c.IsProd() {
		c.Session.Cookie.Secure = true
	}
}

// IsProd reporta app.env == prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// =================================================================================
// VALIDACIÓN
// =================================================================================

// Validate reporta todos los problemas encontrados juntos.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	durs := map[string]string{
		"server.shutdown_timeout":       c.Server.ShutdownTimeout,
		"idp.key_ttl":                   c.IdP.KeyTTL,
		"idp.stale_grace":               c.IdP.StaleGrace,
		"idp.min_refresh_interval":      c.IdP.MinRefreshInterval,
		"idp.fetch_timeout":             c.IdP.FetchTimeout,
		"allow_list.timeout":            c.AllowList.Timeout,
		"allow_list.positive_cache_ttl": c.AllowList.PositiveCacheTTL,
		"session.ttl":                   c.Session.TTL,
		"session.janitor_interval":      c.Session.JanitorInterval,
		"rate.window":                   c.Rate.Window,
		"magic_link.ttl":                c.MagicLink.TTL,
	}
	for key, v := range durs {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			add("%s: invalid duration %q", key, v)
		}
	}

	// IdP
	if !validURL(c.IdP.JWKSURL) {
		add("idp.jwks_url is required")
	} else if strings.HasPrefix(c.IdP.JWKSURL, "http://") && !c.IdP.AllowInsecureHTTP {
		add("idp.jwks_url must be https")
	}
	if strings.TrimSpace(c.IdP.Issuer) == "" {
		add("idp.issuer is required")
	}
	if len(c.IdP.Audience) == 0 {
		add("idp.audience is required")
	}
	if c.Server.SignInURL != "" && !validURL(c.Server.SignInURL) {
		add("server.sign_in_url must be an absolute url")
	}
	for _, p := range c.Server.TrustedProxies {
		if !validIPOrCIDR(p) {
			add("server.trusted_proxies: %q is not an IP or CIDR", p)
		}
	}

	// Allow-list
	if !validURL(c.AllowList.URL) {
		add("allow_list.url is required")
	}
	if t := parse(c.AllowList.Timeout); t <= 0 || t > 30*time.Second {
		add("allow_list.timeout must be > 0 and <= 30s")
	}
	if ttl := parse(c.AllowList.PositiveCacheTTL); ttl < 0 || ttl > parse(c.Session.TTL) {
		add("allow_list.positive_cache_ttl must be between 0 and session.ttl")
	}

	// Session
	switch c.Session.Strategy {
	case "stored":
	case "stateless-signed":
		if len(c.Session.SigningSecret) < 32 {
			add("session.signing_secret must be at least 32 bytes for stateless-signed")
		}
	default:
		add("session.strategy must be stored or stateless-signed")
	}
	if parse(c.Session.TTL) <= 0 {
		add("session.ttl must be > 0")
	}

	// Storage / cache
	switch c.Storage.Driver {
	case "memory":
		if c.IsProd() {
			add("storage.driver memory is not allowed in prod")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			add("storage.dsn is required for postgres")
		}
	default:
		add("storage.driver must be memory or postgres")
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Addr == "" {
			add("cache.addr is required for redis")
		}
	default:
		add("cache.driver must be memory or redis")
	}
	if c.Rate.Enabled && c.Rate.Limit <= 0 {
		add("rate.limit must be > 0")
	}

	// Admin
	a := c.Admin
	if set := countSet(a.Username, a.Password, a.Email); set != 0 && set != 3 {
		add("admin: username, password and email must be set together")
	} else if set == 3 {
		if !strings.Contains(a.Email, "@") {
			add("admin.email is invalid")
		}
		if c.IsProd() && !password.IsHash(a.Password) {
			add("admin.password must be an argon2id hash in prod")
		}
	}

	// Magic link
	if c.MagicLink.Enabled {
		if !validURL(c.MagicLink.RedeemURL) {
			add("magic_link.redeem_url is required")
		}
		switch c.SMTP.Driver {
		case "smtp":
			if c.SMTP.Host == "" || c.SMTP.From == "" {
				add("smtp.host and smtp.from are required for magic links")
			}
		case "log":
			if c.IsProd() {
				add("smtp.driver log is not allowed in prod")
			}
		default:
			add("smtp.driver must be smtp or log")
		}
	}

	// SSO
	if c.SSO.Enabled {
		if !validURL(c.SSO.JWKSURL) {
			add("sso.jwks_url is required")
		}
		if c.SSO.Issuer == "" || len(c.SSO.ClientIDs) == 0 {
			add("sso.issuer and sso.client_ids are required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func validURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func countSet(vals ...string) int {
	n := 0
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// parse: las duraciones ya se validaron; una vacía o inválida es 0.
func parse(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// =================================================================================
// DURACIONES TIPADAS
// =================================================================================

func (c *Config) ShutdownTimeout() time.Duration    { return parse(c.Server.ShutdownTimeout) }
func (c *Config) KeyTTL() time.Duration             { return parse(c.IdP.KeyTTL) }
func (c *Config) StaleGrace() time.Duration         { return parse(c.IdP.StaleGrace) }
func (c *Config) MinRefreshInterval() time.Duration { return parse(c.IdP.MinRefreshInterval) }
func (c *Config) FetchTimeout() time.Duration       { return parse(c.IdP.FetchTimeout) }
func (c *Config) AllowListTimeout() time.Duration   { return parse(c.AllowList.Timeout) }
func (c *Config) PositiveCacheTTL() time.Duration   { return parse(c.AllowList.PositiveCacheTTL) }
func (c *Config) SessionTTL() time.Duration         { return parse(c.Session.TTL) }
func (c *Config) JanitorInterval() time.Duration    { return parse(c.Session.JanitorInterval) }
func (c *Config) RateWindow() time.Duration         { return parse(c.Rate.Window) }
func (c *Config) MagicLinkTTL() time.Duration       { return parse(c.MagicLink.TTL) }

// =================================================================================
// ENV
// =================================================================================

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides: PORTALGATE_* pisa lo que vino del YAML.
func (c *Config) applyEnvOverrides() {
	str := func(key string, dst *string) {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := getEnvInt(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := getEnvBool(key); ok {
			*dst = v
		}
	}
	csv := func(key string, dst *[]string) {
		if v, ok := getEnvCSV(key); ok {
			*dst = v
		}
	}

	// APP / SERVER
	str("APP_ENV", &c.App.Env)
	c.App.Env = strings.ToLower(c.App.Env)
	str("LOG_LEVEL", &c.App.LogLevel)
	str("SERVER_ADDR", &c.Server.Addr)
	csv("CORS_ALLOWED_ORIGINS", &c.Server.CORSAllowedOrigins)
	csv("TRUSTED_PROXIES", &c.Server.TrustedProxies)
	str("SIGN_IN_URL", &c.Server.SignInURL)
	boolean("METRICS", &c.Server.Metrics)

	// IDP
	str("IDP_JWKS_URL", &c.IdP.JWKSURL)
	str("IDP_ISSUER", &c.IdP.Issuer)
	csv("IDP_AUDIENCE", &c.IdP.Audience)
	str("IDP_KEY_TTL", &c.IdP.KeyTTL)
	str("IDP_ANONYMOUS_SUBJECT", &c.IdP.AnonymousSubject)
	boolean("IDP_ALLOW_INSECURE_HTTP", &c.IdP.AllowInsecureHTTP)

	// ALLOW-LIST
	str("ALLOWLIST_URL", &c.AllowList.URL)
	str("ALLOWLIST_TIMEOUT", &c.AllowList.Timeout)
	str("ALLOWLIST_POSITIVE_CACHE_TTL", &c.AllowList.PositiveCacheTTL)

	// SESSION
	str("SESSION_STRATEGY", &c.Session.Strategy)
	str("SESSION_TTL", &c.Session.TTL)
	str("SESSION_SIGNING_SECRET", &c.Session.SigningSecret)
	str("SESSION_COOKIE_DOMAIN", &c.Session.Cookie.Domain)
	boolean("SESSION_COOKIE_SECURE", &c.Session.Cookie.Secure)

	// STORAGE / CACHE
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_DSN", &c.Storage.DSN)
	integer("STORAGE_MAX_CONNS", &c.Storage.MaxConns)
	boolean("STORAGE_ENSURE_SCHEMA", &c.Storage.EnsureSchema)
	str("CACHE_DRIVER", &c.Cache.Driver)
	str("REDIS_ADDR", &c.Cache.Addr)
	str("REDIS_PASSWORD", &c.Cache.Password)
	integer("REDIS_DB", &c.Cache.DB)

	// RATE
	boolean("RATE_ENABLED", &c.Rate.Enabled)
	integer("RATE_LIMIT", &c.Rate.Limit)
	str("RATE_WINDOW", &c.Rate.Window)

	// ADMIN
	str("ADMIN_USERNAME", &c.Admin.Username)
	str("ADMIN_PASSWORD", &c.Admin.Password)
	str("ADMIN_EMAIL", &c.Admin.Email)

	// MAGIC LINK / SMTP
	boolean("MAGIC_LINK_ENABLED", &c.MagicLink.Enabled)
	str("MAGIC_LINK_REDEEM_URL", &c.MagicLink.RedeemURL)
	str("SMTP_DRIVER", &c.SMTP.Driver)
	str("SMTP_HOST", &c.SMTP.Host)
	integer("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	str("SMTP_TLS", &c.SMTP.TLS)

	// SSO
	boolean("SSO_ENABLED", &c.SSO.Enabled)
	str("SSO_JWKS_URL", &c.SSO.JWKSURL)
	str("SSO_ISSUER", &c.SSO.Issuer)
	csv("SSO_CLIENT_IDS", &c.SSO.ClientIDs)
}

func validIPOrCIDR(s string) bool {
	s = strings.TrimSpace(s)
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

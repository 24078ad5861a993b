package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
idp:
  jwks_url: https://idp.example.com/.well-known/jwks.json
  issuer: https://idp.example.com
  audience: [portal]
allow_list:
  url: https://allow.example.com/check
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeYAML(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "stored", c.Session.Strategy)
	assert.Equal(t, "portal_session", c.Session.Cookie.Name)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "memory", c.Cache.Driver)
	assert.Equal(t, 12*time.Hour, c.SessionTTL())
	assert.Equal(t, 3*time.Second, c.AllowListTimeout())
	assert.Equal(t, 10*time.Minute, c.KeyTTL())
	assert.Equal(t, 15*time.Minute, c.MagicLinkTTL())
	assert.Zero(t, c.PositiveCacheTTL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORTALGATE_SERVER_ADDR", ":9999")
	t.Setenv("PORTALGATE_IDP_AUDIENCE", "a, b ,")
	t.Setenv("PORTALGATE_ALLOWLIST_TIMEOUT", "750ms")
	t.Setenv("PORTALGATE_RATE_ENABLED", "true")
	t.Setenv("PORTALGATE_RATE_LIMIT", "nope") // ignorado
	t.Setenv("PORTALGATE_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	c, err := Load(writeYAML(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Server.Addr)
	assert.Equal(t, []string{"a", "b"}, c.IdP.Audience)
	assert.Equal(t, 750*time.Millisecond, c.AllowListTimeout())
	assert.True(t, c.Rate.Enabled)
	assert.Equal(t, 10, c.Rate.Limit)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, c.Server.TrustedProxies)
}

func TestLoad_OnlyEnv(t *testing.T) {
	t.Setenv("PORTALGATE_IDP_JWKS_URL", "https://idp/jwks")
	t.Setenv("PORTALGATE_IDP_ISSUER", "https://idp")
	t.Setenv("PORTALGATE_IDP_AUDIENCE", "portal")
	t.Setenv("PORTALGATE_ALLOWLIST_URL", "https://allow/check")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://idp", c.IdP.Issuer)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeYAML(t, "idp: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		c, err := Load(writeYAML(t, minimal))
		require.NoError(t, err)
		return c
	}

	cases := []struct {
		name string
		mod  func(c *Config)
		want string
	}{
		{"missing jwks", func(c *Config) { c.IdP.JWKSURL = "" }, "idp.jwks_url is required"},
		{"plain http jwks", func(c *Config) { c.IdP.JWKSURL = "http://idp/jwks" }, "idp.jwks_url must be https"},
		{"missing issuer", func(c *Config) { c.IdP.Issuer = " " }, "idp.issuer"},
		{"missing audience", func(c *Config) { c.IdP.Audience = nil }, "idp.audience"},
		{"missing allow-list", func(c *Config) { c.AllowList.URL = "" }, "allow_list.url"},
		{"timeout too long", func(c *Config) { c.AllowList.Timeout = "31s" }, "allow_list.timeout"},
		{"timeout zero", func(c *Config) { c.AllowList.Timeout = "0s" }, "allow_list.timeout"},
		{"bad duration", func(c *Config) { c.Session.TTL = "tomorrow" }, "session.ttl: invalid duration"},
		{"positive ttl above session", func(c *Config) { c.AllowList.PositiveCacheTTL = "13h" }, "positive_cache_ttl"},
		{"short secret", func(c *Config) {
			c.Session.Strategy = "stateless-signed"
			c.Session.SigningSecret = "short"
		}, "signing_secret"},
		{"unknown strategy", func(c *Config) { c.Session.Strategy = "jwt" }, "session.strategy"},
		{"partial admin", func(c *Config) { c.Admin.Username = "admin" }, "admin: username"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "lb.internal"} }, "server.trusted_proxies"},
		{"redis without addr", func(c *Config) { c.Cache.Driver = "redis" }, "cache.addr"},
		{"magic link without redeem url", func(c *Config) {
			c.MagicLink.Enabled = true
			c.SMTP.Driver = "log"
		}, "magic_link.redeem_url"},
		{"sso incomplete", func(c *Config) {
			c.SSO.Enabled = true
			c.SSO.JWKSURL = "https://sso/jwks"
		}, "sso.issuer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base(t)
			tc.mod(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_Prod(t *testing.T) {
	c, err := Load(writeYAML(t, minimal))
	require.NoError(t, err)

	c.App.Env = "prod"
	c.Admin.Username = "admin"
	c.Admin.Password = "plaintext-password"
	c.Admin.Email = "admin@example.com"
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argon2id")
	assert.Contains(t, err.Error(), "storage.driver memory")
}

func TestValidate_StatelessOK(t *testing.T) {
	c, err := Load(writeYAML(t, minimal))
	require.NoError(t, err)
	c.Session.Strategy = "stateless-signed"
	c.Session.SigningSecret = "0123456789abcdef0123456789abcdef"
	c.AllowList.PositiveCacheTTL = "5m"
	require.NoError(t, c.Validate())
}

func TestApplyDefaults_ProdForcesSecureCookie(t *testing.T) {
	var c Config
	c.App.Env = "prod"
	c.applyDefaults()
	assert.True(t, c.Session.Cookie.Secure)
}

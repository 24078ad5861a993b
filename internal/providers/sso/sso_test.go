package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/jwt"
	"github.com/dropDatabas3/portalgate/internal/providers"
)

const (
	idpIssuer = "https://idp.example.com"
	clientID  = "portal-web"
)

type idp struct {
	key *rsa.PrivateKey
	srv *httptest.Server
	now time.Time
}

func newIdP(t *testing.T) *idp {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	body, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &k.PublicKey, KeyID: "sso-1", Algorithm: "RS256", Use: "sig"}}})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return &idp{key: k, srv: srv, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (i *idp) provider(t *testing.T, mod func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		JWKSURL:           i.srv.URL,
		Issuer:            idpIssuer,
		Audience:          []string{clientID},
		AllowInsecureHTTP: true,
		Now:               func() time.Time { return i.now },
	}
	if mod != nil {
		mod(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func (i *idp) idToken(t *testing.T, extra jwtv5.MapClaims) string {
	t.Helper()
	claims := jwtv5.MapClaims{
		"sub":            "00u1abc",
		"iss":            idpIssuer,
		"aud":            clientID,
		"iat":            i.now.Add(-time.Minute).Unix(),
		"exp":            i.now.Add(5 * time.Minute).Unix(),
		"email":          "Ana@Example.com",
		"email_verified": true,
	}
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = "sso-1"
	s, err := tok.SignedString(i.key)
	require.NoError(t, err)
	return s
}

func TestVerifyAssertion_OK(t *testing.T) {
	i := newIdP(t)
	p := i.provider(t, nil)

	id, err := p.VerifyAssertion(context.Background(), i.idToken(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "Ana@Example.com", id.Email)
	assert.Equal(t, "00u1abc", id.Subject)
}

func TestVerifyAssertion_Rejections(t *testing.T) {
	i := newIdP(t)
	p := i.provider(t, nil)

	cases := map[string]jwtv5.MapClaims{
		"wrong audience": {"aud": "other-client"},
		"wrong issuer":   {"iss": "https://evil.example.com"},
		"expired":        {"exp": i.now.Add(-time.Second).Unix()},
		"no email":       {"email": nil},
		"unverified":     {"email_verified": false},
		"anonymous":      {"sub": jwt.AnonymousSubject},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.VerifyAssertion(context.Background(), i.idToken(t, extra))
			assert.ErrorIs(t, err, providers.ErrInvalidCredential)
		})
	}

	_, err := p.VerifyAssertion(context.Background(), "garbage")
	assert.ErrorIs(t, err, providers.ErrInvalidCredential)
}

func TestVerifyAssertion_AllowUnverifiedEmail(t *testing.T) {
	i := newIdP(t)
	p := i.provider(t, func(c *Config) { c.AllowUnverifiedEmail = true })

	_, err := p.VerifyAssertion(context.Background(), i.idToken(t, jwtv5.MapClaims{"email_verified": nil}))
	require.NoError(t, err)
}

func TestVerifyAssertion_IdPDown(t *testing.T) {
	i := newIdP(t)
	p := i.provider(t, nil)
	tok := i.idToken(t, nil)
	i.srv.Close()

	_, err := p.VerifyAssertion(context.Background(), tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrKeyFetchFailed)
	assert.NotErrorIs(t, err, providers.ErrInvalidCredential)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{JWKSURL: "http://idp.example.com/jwks", Issuer: idpIssuer, Audience: []string{clientID}})
	assert.Error(t, err, "http without AllowInsecureHTTP")
	_, err = New(Config{JWKSURL: "https://idp.example.com/jwks", Audience: []string{clientID}})
	assert.Error(t, err)
	_, err = New(Config{JWKSURL: "https://idp.example.com/jwks", Issuer: idpIssuer})
	assert.Error(t, err)
}

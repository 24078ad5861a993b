package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/allowlist"
	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/providers"
	"github.com/dropDatabas3/portalgate/internal/providers/static"
	"github.com/dropDatabas3/portalgate/internal/session"
	"github.com/dropDatabas3/portalgate/internal/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// allowListServer responde status (tras delay) y cuenta las llamadas.
type allowListServer struct {
	*httptest.Server
	hits   atomic.Int32
	status int
	delay  time.Duration
}

func newAllowList(t *testing.T, status int, delay time.Duration) (*allowListServer, *allowlist.Gate) {
	t.Helper()
	s := &allowListServer{status: status, delay: delay}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(s.status)
	}))
	t.Cleanup(s.Close)

	g, err := allowlist.New(allowlist.Config{URL: s.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	return s, g
}

// ssoStub acepta cualquier aserción no vacía como el email dado.
type ssoStub struct{ email string }

func (s ssoStub) VerifyAssertion(_ context.Context, assertion string) (session.VerifiedIdentity, error) {
	if assertion == "" {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	return session.VerifiedIdentity{Email: s.email, Subject: "ext-" + assertion}, nil
}

// magicStub canjea un único token fijo.
type magicStub struct{ email, token string }

func (m magicStub) Redeem(_ context.Context, email, token string) (session.VerifiedIdentity, error) {
	if email != m.email || token != m.token {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	return session.VerifiedIdentity{Email: email}, nil
}

// failingStore falla en Establish.
type failingStore struct {
	*memory.Store
}

func (failingStore) Establish(context.Context, repository.Identity, repository.Session) error {
	return errors.New("connection reset by peer")
}

func newAdmin(t *testing.T) *static.Authenticator {
	t.Helper()
	a, err := static.New(static.Config{Username: "admin", Password: "secret123", Email: "admin@portal.local"})
	require.NoError(t, err)
	return a
}

type fixture struct {
	orch  *session.Orchestrator
	store *memory.Store
	allow *allowListServer
	clock *clock
}

func newFixture(t *testing.T, allowStatus int, mod func(*session.Config)) *fixture {
	t.Helper()
	srv, gate := newAllowList(t, allowStatus, 0)
	f := &fixture{store: memory.New(), allow: srv, clock: newClock()}
	cfg := session.Config{
		Store:      f.store,
		AllowList:  gate,
		MagicLinks: magicStub{email: "ana@example.com", token: "tok-1"},
		Admin:      newAdmin(t),
		SSO:        ssoStub{email: "bob@example.com"},
		SessionTTL: time.Hour,
		Now:        f.clock.Now,
	}
	if mod != nil {
		mod(&cfg)
	}
	o, err := session.New(cfg)
	require.NoError(t, err)
	f.orch = o
	return f
}

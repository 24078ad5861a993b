package magiclink

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/cache"
	"github.com/dropDatabas3/portalgate/internal/email"
	"github.com/dropDatabas3/portalgate/internal/providers"
)

func newService(t *testing.T) (*Service, *email.Outbox, cache.Client) {
	t.Helper()
	c := cache.NewMemory("test:")
	t.Cleanup(func() { _ = c.Close() })
	box := &email.Outbox{}
	s, err := New(Config{Cache: c, Sender: box, RedeemURL: "https://portal.example.com/sign-in/redeem?src=mail"})
	require.NoError(t, err)
	return s, box, c
}

// linkToken saca email y token del link del último correo.
func linkToken(t *testing.T, box *email.Outbox) (string, string) {
	t.Helper()
	msg, ok := box.Last()
	require.True(t, ok)
	for _, line := range strings.Split(msg.TextBody, "\n") {
		if raw, ok := strings.CutPrefix(line, "Sign in: "); ok {
			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "mail", u.Query().Get("src"))
			return u.Query().Get("email"), u.Query().Get("token")
		}
	}
	t.Fatal("no link in message")
	return "", ""
}

func TestIssueAndRedeem(t *testing.T) {
	s, box, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.Issue(ctx, " Ana@Example.com "))
	addr, tok := linkToken(t, box)
	assert.Equal(t, "ana@example.com", addr)
	assert.NotEmpty(t, tok)

	id, err := s.Redeem(ctx, "ana@example.com", tok)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", id.Email)

	// un solo uso
	_, err = s.Redeem(ctx, "ana@example.com", tok)
	assert.ErrorIs(t, err, providers.ErrInvalidCredential)
}

func TestRedeem_ConcurrentSingleWinner(t *testing.T) {
	s, box, _ := newService(t)
	require.NoError(t, s.Issue(context.Background(), "ana@example.com"))
	_, tok := linkToken(t, box)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Redeem(context.Background(), "ana@example.com", tok); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedeem_WrongAddressBurnsToken(t *testing.T) {
	s, box, _ := newService(t)
	require.NoError(t, s.Issue(context.Background(), "ana@example.com"))
	_, tok := linkToken(t, box)

	_, err := s.Redeem(context.Background(), "eve@example.com", tok)
	assert.ErrorIs(t, err, providers.ErrInvalidCredential)
	_, err = s.Redeem(context.Background(), "ana@example.com", tok)
	assert.ErrorIs(t, err, providers.ErrInvalidCredential)
}

func TestRedeem_UnknownOrEmpty(t *testing.T) {
	s, _, _ := newService(t)
	for _, tc := range []struct{ addr, tok string }{
		{"ana@example.com", ""},
		{"ana@example.com", "nope"},
		{"not an email", "nope"},
	} {
		_, err := s.Redeem(context.Background(), tc.addr, tc.tok)
		assert.ErrorIs(t, err, providers.ErrInvalidCredential)
	}
}

func TestIssue_SendFailureLeavesNoToken(t *testing.T) {
	c := cache.NewMemory("")
	box := &email.Outbox{Err: errors.New("smtp down")}
	s, err := New(Config{Cache: c, Sender: box, RedeemURL: "https://portal.example.com/redeem", TTL: time.Minute})
	require.NoError(t, err)

	require.Error(t, s.Issue(context.Background(), "ana@example.com"))
	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Keys)
}

func TestIssue_InvalidEmail(t *testing.T) {
	s, box, _ := newService(t)
	for _, addr := range []string{"", "ana", "Ana <ana@example.com>"} {
		assert.ErrorIs(t, s.Issue(context.Background(), addr), ErrInvalidEmail, addr)
	}
	assert.Empty(t, box.Messages())
}

func TestNew_Validation(t *testing.T) {
	c := cache.NewMemory("")
	_, err := New(Config{Sender: &email.Outbox{}, RedeemURL: "https://x.io"})
	assert.Error(t, err)
	_, err = New(Config{Cache: c, RedeemURL: "https://x.io"})
	assert.Error(t, err)
	_, err = New(Config{Cache: c, Sender: &email.Outbox{}, RedeemURL: "/relative"})
	assert.Error(t, err)

	s, err := New(Config{Cache: c, Sender: &email.Outbox{}, RedeemURL: "https://x.io/r"})
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, s.TTL())
}

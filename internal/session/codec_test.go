package session

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
)

func testSession(now time.Time) repository.Session {
	return repository.Session{
		ID:            uuid.NewString(),
		IdentityEmail: "ana@example.com",
		Label:         "ana",
		Strategy:      repository.StrategyStatelessSigned,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestSignedCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewSignedCodec([]byte("0123456789abcdef0123456789abcdef"), "portalgate", func() time.Time { return now })
	require.NoError(t, err)

	s := testSession(now)
	tok, err := c.Issue(s)
	require.NoError(t, err)

	var claims sessionClaims
	_, _, err = jwtv5.NewParser().ParseUnverified(tok, &claims)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.ID)
	assert.Equal(t, "ana@example.com", claims.Subject)
	assert.Equal(t, "ana", claims.Label)
	assert.Equal(t, "stateless-signed", claims.Strategy)

	sid, err := c.SessionID(tok, false)
	require.NoError(t, err)
	assert.Equal(t, s.ID, sid)
}

func TestSignedCodec_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("0123456789abcdef0123456789abcdef")
	c, err := NewSignedCodec(secret, "portalgate", func() time.Time { return now })
	require.NoError(t, err)

	other, err := NewSignedCodec([]byte("ffffffffffffffffffffffffffffffff"), "portalgate", func() time.Time { return now })
	require.NoError(t, err)
	foreign, err := other.Issue(testSession(now))
	require.NoError(t, err)
	_, err = c.SessionID(foreign, false)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	wrongIss, err := NewSignedCodec(secret, "someone-else", func() time.Time { return now })
	require.NoError(t, err)
	tok, err := wrongIss.Issue(testSession(now))
	require.NoError(t, err)
	_, err = c.SessionID(tok, false)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	none, err := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, jwtv5.MapClaims{"jti": "x", "exp": now.Add(time.Hour).Unix()}).
		SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.SessionID(none, false)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	noJTI, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{"iss": "portalgate", "exp": now.Add(time.Hour).Unix()}).
		SignedString(secret)
	require.NoError(t, err)
	_, err = c.SessionID(noJTI, false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSignedCodec_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	c, err := NewSignedCodec([]byte("0123456789abcdef0123456789abcdef"), "portalgate", func() time.Time { return clock })
	require.NoError(t, err)

	s := testSession(now)
	tok, err := c.Issue(s)
	require.NoError(t, err)

	clock = now.Add(2 * time.Hour)
	_, err = c.SessionID(tok, false)
	assert.ErrorIs(t, err, ErrSessionExpired)

	sid, err := c.SessionID(tok, true)
	require.NoError(t, err)
	assert.Equal(t, s.ID, sid)
}

func TestNewSignedCodec_ShortSecret(t *testing.T) {
	_, err := NewSignedCodec([]byte("short"), "", nil)
	assert.Error(t, err)
}

func TestStoredCodec(t *testing.T) {
	var c storedCodec
	id := uuid.NewString()
	tok, err := c.Issue(repository.Session{ID: id})
	require.NoError(t, err)
	assert.Equal(t, id, tok)

	got, err := c.SessionID(id, false)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = c.SessionID("../etc/passwd", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttemptTransitions(t *testing.T) {
	a := newAttempt(repository.KindEmailLink, "a1")
	require.NoError(t, a.transition(StateCredentialSubmitted))
	assert.Error(t, a.transition(StateUnauthenticated))
	require.NoError(t, a.transition(StateAllowListChecked))
	a.reject("allow_list_denied")
	assert.Equal(t, StateRejected, a.State)
	assert.True(t, a.State.Terminal())
	assert.Error(t, a.transition(StateSessionEstablished))

	// reject sobre un estado terminal no agrega historia
	n := len(a.History)
	a.reject("x")
	assert.Len(t, a.History, n)
}

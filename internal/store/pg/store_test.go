package pg_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/store/pg"
)

// Requiere un Postgres real: PORTALGATE_TEST_PG_DSN=postgres://...
func openStore(t *testing.T) *pg.Store {
	t.Helper()
	dsn := os.Getenv("PORTALGATE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PORTALGATE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := pg.Open(ctx, pg.Config{DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixture() (repository.Identity, repository.Session) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	email := "pg-" + uuid.NewString()[:8] + "@example.com"
	return repository.Identity{
			Email:             email,
			CredentialKind:    repository.KindEmailLink,
			AllowListApproved: true,
			ApprovedBy:        "allow-list",
			CreatedAt:         now,
			LastSignInAt:      now,
		}, repository.Session{
			ID:            uuid.NewString(),
			IdentityEmail: email,
			Label:         "pg",
			Strategy:      repository.StrategyStored,
			CreatedAt:     now,
			ExpiresAt:     now.Add(time.Hour),
		}
}

func TestPG_EstablishFindDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, sess := fixture()

	require.NoError(t, s.Establish(ctx, id, sess))

	gotID, err := s.FindIdentity(ctx, id.Email)
	require.NoError(t, err)
	assert.True(t, gotID.AllowListApproved)
	assert.Equal(t, repository.KindEmailLink, gotID.CredentialKind)

	gotSess, err := s.FindSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.IdentityEmail, gotSess.IdentityEmail)
	assert.True(t, sess.ExpiresAt.Equal(gotSess.ExpiresAt))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	assert.True(t, repository.IsNotFound(s.DeleteSession(ctx, sess.ID)))
}

func TestPG_ConcurrentEstablishOneRow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, sess := fixture()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Establish(ctx, id, sess)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, repository.IsConflict(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestPG_CreateSessionRequiresApprovedIdentity(t *testing.T) {
	s := openStore(t)
	_, sess := fixture()
	err := s.CreateSession(context.Background(), sess)
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestPG_SameAttemptDistinctIDsConflict(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	id, sess := fixture()
	sess.AttemptID = "attempt-1"
	require.NoError(t, s.Establish(ctx, id, sess))

	dup := sess
	dup.ID = uuid.NewString()
	require.ErrorIs(t, s.Establish(ctx, id, dup), repository.ErrConflict)

	_, err := s.FindSession(ctx, dup.ID)
	assert.True(t, repository.IsNotFound(err))
}

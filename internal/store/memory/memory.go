// Package memory es el adapter de sesiones en memoria (una réplica, dev, tests).
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
)

// Store implementa repository.Store con maps protegidos por un mutex: cada
// operación es atómica respecto de las demás.
type Store struct {
	mu         sync.Mutex
	identities map[string]repository.Identity
	sessions   map[string]repository.Session
	// attempts indexa (identity_email, attempt_id) → session ID; equivale al
	// índice único parcial de pg.
	attempts map[attemptKey]string
}

type attemptKey struct{ email, attemptID string }

func keyOf(sess repository.Session) (attemptKey, bool) {
	return attemptKey{sess.IdentityEmail, sess.AttemptID}, sess.AttemptID != ""
}

var _ repository.Store = (*Store)(nil)

// New crea un store vacío.
func New() *Store {
	return &Store{
		identities: make(map[string]repository.Identity),
		sessions:   make(map[string]repository.Session),
		attempts:   make(map[attemptKey]string),
	}
}

func (s *Store) CreateIdentity(_ context.Context, id repository.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id.Email]; ok {
		return fmt.Errorf("%w: identity %q", repository.ErrConflict, id.Email)
	}
	s.identities[id.Email] = id
	return nil
}

func (s *Store) FindIdentity(_ context.Context, email string) (*repository.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[repository.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &id, nil
}

func (s *Store) CreateSession(_ context.Context, sess repository.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[sess.IdentityEmail]
	if !ok || !id.AllowListApproved {
		return fmt.Errorf("%w: identity %q is not approved", repository.ErrInvalidInput, sess.IdentityEmail)
	}
	return s.insertSessionLocked(sess)
}

func (s *Store) FindSession(_ context.Context, id string) (*repository.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.deleteSessionLocked(sess)
	return nil
}

func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.Expired(now) {
			s.deleteSessionLocked(sess)
			n++
		}
	}
	return n, nil
}

// Establish: upsert de identidad + insert de sesión bajo el mismo lock.
func (s *Store) Establish(_ context.Context, id repository.Identity, sess repository.Session) error {
	if err := repository.ValidateEstablish(id, sess); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueLocked(sess); err != nil {
		return err
	}
	if prev, ok := s.identities[id.Email]; ok && !prev.CreatedAt.IsZero() {
		id.CreatedAt = prev.CreatedAt
	}
	s.identities[id.Email] = id
	s.putSessionLocked(sess)
	return nil
}

func (s *Store) insertSessionLocked(sess repository.Session) error {
	if err := s.checkUniqueLocked(sess); err != nil {
		return err
	}
	s.putSessionLocked(sess)
	return nil
}

// checkUniqueLocked: ID único y a lo sumo una sesión por (identidad, intento).
func (s *Store) checkUniqueLocked(sess repository.Session) error {
	if _, dup := s.sessions[sess.ID]; dup {
		return fmt.Errorf("%w: session already established", repository.ErrConflict)
	}
	if k, ok := keyOf(sess); ok {
		if _, dup := s.attempts[k]; dup {
			return fmt.Errorf("%w: attempt %q already established a session", repository.ErrConflict, sess.AttemptID)
		}
	}
	return nil
}

func (s *Store) putSessionLocked(sess repository.Session) {
	s.sessions[sess.ID] = sess
	if k, ok := keyOf(sess); ok {
		s.attempts[k] = sess.ID
	}
}

func (s *Store) deleteSessionLocked(sess repository.Session) {
	delete(s.sessions, sess.ID)
	if k, ok := keyOf(sess); ok && s.attempts[k] == sess.ID {
		delete(s.attempts, k)
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error                { return nil }

// SessionCount cantidad de sesiones guardadas (vencidas incluidas).
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

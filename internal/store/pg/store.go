// Package pg es el adapter de sesiones sobre PostgreSQL (pgx/v5).
package pg

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Config del pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implementa repository.Store sobre un pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open crea el pool y verifica la conexión.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New envuelve un pool existente.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// EnsureSchema crea las tablas si no existen. Es idempotente; no migra versiones.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// =================================================================================
// IDENTITY
// =================================================================================

func (s *Store) CreateIdentity(ctx context.Context, id repository.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	const query = `
		INSERT INTO portal_identity (email, credential_kind, allow_list_approved, approved_by, created_at, last_sign_in_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, id.Email, string(id.CredentialKind), id.AllowListApproved, id.ApprovedBy,
		nowIfZero(id.CreatedAt), nowIfZero(id.LastSignInAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: identity %q", repository.ErrConflict, id.Email)
	}
	return nil
}

func (s *Store) FindIdentity(ctx context.Context, email string) (*repository.Identity, error) {
	const query = `
		SELECT email, credential_kind, allow_list_approved, approved_by, created_at, last_sign_in_at
		FROM portal_identity WHERE email = $1
	`
	var id repository.Identity
	var kind string
	err := s.pool.QueryRow(ctx, query, repository.NormalizeEmail(email)).Scan(
		&id.Email, &kind, &id.AllowListApproved, &id.ApprovedBy, &id.CreatedAt, &id.LastSignInAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.CredentialKind = repository.CredentialKind(kind)
	return &id, nil
}

// =================================================================================
// SESSION
// =================================================================================

const insertSession = `
	INSERT INTO portal_session (id, identity_email, label, strategy, attempt_id, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

func (s *Store) CreateSession(ctx context.Context, sess repository.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var approved bool
	err = tx.QueryRow(ctx,
		`SELECT allow_list_approved FROM portal_identity WHERE email = $1 FOR SHARE`,
		sess.IdentityEmail).Scan(&approved)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !approved) {
		return fmt.Errorf("%w: identity %q is not approved", repository.ErrInvalidInput, sess.IdentityEmail)
	}
	if err != nil {
		return err
	}
	if err := insertSessionTx(ctx, tx, sess); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) FindSession(ctx context.Context, id string) (*repository.Session, error) {
	const query = `
		SELECT id, identity_email, label, strategy, attempt_id, created_at, expires_at
		FROM portal_session WHERE id = $1
	`
	var sess repository.Session
	var strategy string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.IdentityEmail, &sess.Label, &strategy, &sess.AttemptID, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Strategy = repository.Strategy(strategy)
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_session WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM portal_session WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// =================================================================================
// ESTABLISH
// =================================================================================

// Establish hace upsert de la identidad e inserta la sesión en una transacción.
// Si la sesión ya existe el rollback descarta también el upsert.
func (s *Store) Establish(ctx context.Context, id repository.Identity, sess repository.Session) error {
	if err := repository.ValidateEstablish(id, sess); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const upsertIdentity = `
		INSERT INTO portal_identity (email, credential_kind, allow_list_approved, approved_by, created_at, last_sign_in_at)
		VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			credential_kind     = EXCLUDED.credential_kind,
			allow_list_approved = TRUE,
			approved_by         = EXCLUDED.approved_by,
			last_sign_in_at     = EXCLUDED.last_sign_in_at
	`
	if _, err := tx.Exec(ctx, upsertIdentity, id.Email, string(id.CredentialKind), id.ApprovedBy,
		nowIfZero(id.CreatedAt), nowIfZero(id.LastSignInAt)); err != nil {
		return fmt.Errorf("pg: upsert identity: %w", err)
	}
	if err := insertSessionTx(ctx, tx, sess); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSessionTx(ctx context.Context, tx pgx.Tx, sess repository.Session) error {
	tag, err := tx.Exec(ctx, insertSession, sess.ID, sess.IdentityEmail, sess.Label, string(sess.Strategy),
		sess.AttemptID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session already established", repository.ErrConflict)
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.Message)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", repository.ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

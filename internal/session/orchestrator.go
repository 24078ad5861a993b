package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/allowlist"
	"github.com/dropDatabas3/portalgate/internal/audit"
	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/metrics"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

const defaultSessionTTL = 12 * time.Hour

// =================================================================================
// CONTRATOS DE PROVEEDORES
// =================================================================================

// MagicLinkRedeemer canjea un magic-link de un solo uso.
type MagicLinkRedeemer interface {
	Redeem(ctx context.Context, email, token string) (VerifiedIdentity, error)
}

// AdminAuthenticator compara contra la única identidad admin configurada.
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (VerifiedIdentity, error)
}

// AssertionVerifier valida una aserción SSO ya emitida por el proveedor externo.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, assertion string) (VerifiedIdentity, error)
}

// AllowListChecker es el gate de allow-list.
type AllowListChecker interface {
	Check(ctx context.Context, email string) allowlist.Result
}

// =================================================================================
// ORCHESTRATOR
// =================================================================================

// Config del orquestador.
type Config struct {
	Store     repository.Store
	AllowList AllowListChecker

	MagicLinks MagicLinkRedeemer
	Admin      AdminAuthenticator
	SSO        AssertionVerifier

	Strategy      repository.Strategy
	SessionTTL    time.Duration
	SigningSecret []byte // requerido para stateless-signed
	Issuer        string

	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Orchestrator ejecuta sign-in, resume y sign-out.
type Orchestrator struct {
	store     repository.Store
	allowList AllowListChecker
	magic     MagicLinkRedeemer
	admin     AdminAuthenticator
	sso       AssertionVerifier
	strategy  repository.Strategy
	ttl       time.Duration
	codec     tokenCodec
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// Established es el resultado de un sign-in exitoso.
type Established struct {
	Attempt *Attempt
	Session repository.Session
	// Token es lo que el cliente presenta en adelante (session ID o JWT firmado).
	Token string
}

// New valida cfg y crea el orquestador.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.AllowList == nil {
		return nil, errors.New("session: allow-list gate is required")
	}
	o := &Orchestrator{
		store:     cfg.Store,
		allowList: cfg.AllowList,
		magic:     cfg.MagicLinks,
		admin:     cfg.Admin,
		sso:       cfg.SSO,
		strategy:  cfg.Strategy,
		ttl:       cfg.SessionTTL,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.ttl <= 0 {
		o.ttl = defaultSessionTTL
	}
	if o.log == nil {
		o.log = logger.Named("session")
	}
	switch o.strategy {
	case repository.StrategyStored, "":
		o.strategy = repository.StrategyStored
		o.codec = storedCodec{}
	case repository.StrategyStatelessSigned:
		c, err := NewSignedCodec(cfg.SigningSecret, cfg.Issuer, o.now)
		if err != nil {
			return nil, err
		}
		o.codec = c
	default:
		return nil, fmt.Errorf("session: unknown strategy %q", o.strategy)
	}
	return o, nil
}

// SessionTTL duración de las sesiones emitidas.
func (o *Orchestrator) SessionTTL() time.Duration { return o.ttl }

// SignIn lleva una credencial hasta session_established o rejected.
// En rechazo devuelve *Rejection; nunca deja el intento en credential_submitted.
func (o *Orchestrator) SignIn(ctx context.Context, cred Credential) (*Established, error) {
	attempt := newAttempt(cred.Kind(), attemptIDFor(cred))
	_ = attempt.transition(StateCredentialSubmitted)

	verified, err := o.verifyCredential(ctx, cred)
	if err != nil {
		return nil, o.rejectAttempt(ctx, attempt, reason.CredentialInvalid, err)
	}
	attempt.Email = repository.NormalizeEmail(verified.Email)
	if attempt.Email == "" {
		return nil, o.rejectAttempt(ctx, attempt, reason.CredentialInvalid, errors.New("provider returned no email"))
	}

	switch cred.(type) {
	case StaticCredential:
		// admin estático: aprobado por configuración, sin allow-list
		attempt.approve(ApprovedByConfiguration)
	default:
		res := o.allowList.Check(ctx, attempt.Email)
		if !res.Allowed {
			code := res.Reason
			if code == "" {
				code = reason.AllowListDenied
			}
			return nil, o.rejectAttempt(ctx, attempt, code, nil)
		}
		attempt.approve(ApprovedByAllowList)
		_ = attempt.transition(StateAllowListChecked)
	}

	return o.establish(ctx, attempt)
}

// verifyCredential despacha al proveedor de cada variante.
func (o *Orchestrator) verifyCredential(ctx context.Context, cred Credential) (VerifiedIdentity, error) {
	switch c := cred.(type) {
	case EmailLink:
		if o.magic == nil {
			return VerifiedIdentity{}, ErrProviderNotConfigured
		}
		return o.magic.Redeem(ctx, c.Email, c.Token)
	case StaticCredential:
		if o.admin == nil {
			return VerifiedIdentity{}, ErrProviderNotConfigured
		}
		return o.admin.Authenticate(ctx, c.Username, c.Password)
	case DelegatedSSO:
		if o.sso == nil {
			return VerifiedIdentity{}, ErrProviderNotConfigured
		}
		return o.sso.VerifyAssertion(ctx, c.Assertion)
	default:
		return VerifiedIdentity{}, fmt.Errorf("session: unsupported credential %T", cred)
	}
}

func (o *Orchestrator) establish(ctx context.Context, attempt *Attempt) (*Established, error) {
	if !attempt.AllowListApproved {
		return nil, o.rejectAttempt(ctx, attempt, reason.AdapterPersistFailed,
			errors.New("refusing to persist a session for an unapproved identity"))
	}

	sid, err := newSessionID()
	if err != nil {
		return nil, o.rejectAttempt(ctx, attempt, reason.AdapterPersistFailed, err)
	}

	now := o.now().UTC()
	identity := repository.Identity{
		Email:             attempt.Email,
		CredentialKind:    attempt.Kind,
		AllowListApproved: true,
		ApprovedBy:        attempt.ApprovedBy,
		CreatedAt:         now,
		LastSignInAt:      now,
	}
	sess := repository.Session{
		ID:            sid,
		IdentityEmail: attempt.Email,
		Label:         LabelFromEmail(attempt.Email),
		Strategy:      o.strategy,
		AttemptID:     attempt.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(o.ttl),
	}

	if err := o.store.Establish(ctx, identity, sess); err != nil {
		return nil, o.rejectAttempt(ctx, attempt, reason.AdapterPersistFailed, err)
	}
	token, err := o.codec.Issue(sess)
	if err != nil {
		// la sesión ya existe; sin token no es alcanzable, la quitamos
		_ = o.store.DeleteSession(ctx, sess.ID)
		return nil, o.rejectAttempt(ctx, attempt, reason.AdapterPersistFailed, err)
	}
	_ = attempt.transition(StateSessionEstablished)

	o.metrics.ObserveSignIn(string(attempt.Kind), string(attempt.State), "")
	o.metrics.SessionOpened()
	audit.Log(ctx, audit.SignInEstablished,
		logger.CredentialKind(string(attempt.Kind)),
		logger.State(string(attempt.State)),
		audit.Email(attempt.Email),
		logger.SessionID(sess.ID),
		zap.String("approved_by", string(attempt.ApprovedBy)),
	)
	return &Established{Attempt: attempt, Session: sess, Token: token}, nil
}

func (o *Orchestrator) rejectAttempt(ctx context.Context, attempt *Attempt, code reason.Code, cause error) error {
	attempt.reject(code)
	o.metrics.ObserveSignIn(string(attempt.Kind), string(attempt.State), string(code))

	fields := []zap.Field{
		logger.CredentialKind(string(attempt.Kind)),
		logger.State(string(attempt.State)),
		logger.Reason(string(code)),
	}
	if attempt.Email != "" {
		fields = append(fields, audit.Email(attempt.Email))
	}
	if cause != nil {
		fields = append(fields, logger.Err(cause))
	}
	audit.Log(ctx, audit.SignInRejected, fields...)
	return &Rejection{Attempt: attempt, Reason: code, Err: cause}
}

// =================================================================================
// RESUME / SIGN-OUT
// =================================================================================

// Resume resuelve el token de sesión. Las sesiones vencidas se eliminan y se
// reportan como ErrSessionExpired.
func (o *Orchestrator) Resume(ctx context.Context, token string) (*repository.Session, error) {
	sid, err := o.codec.SessionID(token, false)
	if errors.Is(err, ErrSessionExpired) {
		if sid, err2 := o.codec.SessionID(token, true); err2 == nil {
			o.expire(ctx, sid)
		}
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, ErrSessionNotFound
	}

	sess, err := o.store.FindSession(ctx, sid)
	if repository.IsNotFound(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(o.now()) {
		o.expire(ctx, sid)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// SignOut elimina la sesión del token. Funciona también con tokens vencidos.
func (o *Orchestrator) SignOut(ctx context.Context, token string) error {
	sid, err := o.codec.SessionID(token, true)
	if err != nil {
		return ErrSessionNotFound
	}
	if err := o.store.DeleteSession(ctx, sid); err != nil {
		if repository.IsNotFound(err) {
			return ErrSessionNotFound
		}
		return err
	}
	o.metrics.SessionClosed()
	audit.Log(ctx, audit.SessionSignedOut, logger.SessionID(sid))
	return nil
}

func (o *Orchestrator) expire(ctx context.Context, sid string) {
	if err := o.store.DeleteSession(ctx, sid); err == nil {
		o.metrics.SessionClosed()
		audit.Log(ctx, audit.SessionExpired, logger.SessionID(sid))
	} else if !repository.IsNotFound(err) {
		o.log.Warn("delete expired session failed", logger.SessionID(sid), logger.Err(err))
	}
}

// =================================================================================
// IDS
// =================================================================================

// attemptIDFor: el ID explícito si vino; para magic-link el hash del token (un
// reenvío del mismo link es el mismo intento); si no, uno aleatorio.
func attemptIDFor(cred Credential) string {
	if id := cred.attemptID(); id != "" {
		return id
	}
	if c, ok := cred.(EmailLink); ok && c.Token != "" {
		sum := sha256.Sum256([]byte(c.Token))
		return hex.EncodeToString(sum[:16])
	}
	return uuid.NewString()
}

// newSessionID es un UUIDv4 aleatorio: con la estrategia stored el ID es el
// bearer. La unicidad por (email, intento) la garantiza el store, no el ID.
func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return id.String(), nil
}

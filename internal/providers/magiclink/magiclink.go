// Package magiclink emite y canjea magic-links de un solo uso.
//
// El token viaja sólo en el correo. En cache se guarda sha256(token) -> email con
// TTL; el canje usa Take, así que de dos canjes concurrentes gana uno.
package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/cache"
	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/email"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/providers"
	tokens "github.com/dropDatabas3/portalgate/internal/security/token"
	"github.com/dropDatabas3/portalgate/internal/session"
)

const (
	defaultTTL = 15 * time.Minute
	tokenBytes = 32
	keyPrefix  = "magiclink:"
)

// ErrInvalidEmail la dirección no se puede parsear.
var ErrInvalidEmail = errors.New("magiclink: invalid email")

type Config struct {
	Cache  cache.Client
	Sender email.Sender
	// RedeemURL es la página que recibe ?email=&token= y hace el POST de canje.
	RedeemURL string
	TTL       time.Duration
	Logger    *zap.Logger
}

type Service struct {
	cache     cache.Client
	sender    email.Sender
	redeemURL *url.URL
	ttl       time.Duration
	log       *zap.Logger
}

func New(cfg Config) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errors.New("magiclink: cache is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("magiclink: sender is required")
	}
	u, err := url.Parse(cfg.RedeemURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("magiclink: invalid redeem url %q", cfg.RedeemURL)
	}
	s := &Service{cache: cfg.Cache, sender: cfg.Sender, redeemURL: u, ttl: cfg.TTL, log: cfg.Logger}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.log == nil {
		s.log = logger.Named("magiclink")
	}
	return s, nil
}

// TTL vigencia de cada link.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue genera un token, lo guarda hasheado y envía el correo.
// No consulta el allow-list: eso pasa al canjear.
func (s *Service) Issue(ctx context.Context, address string) error {
	addr, err := normalizeAddress(address)
	if err != nil {
		return err
	}
	tok, err := tokens.GenerateOpaqueToken(tokenBytes)
	if err != nil {
		return fmt.Errorf("magiclink: generate token: %w", err)
	}
	key := keyPrefix + tokens.SHA256Base64URL(tok)
	if err := s.cache.Set(ctx, key, addr, s.ttl); err != nil {
		return fmt.Errorf("magiclink: store token: %w", err)
	}

	msg, err := email.RenderMagicLink(email.MagicLinkVars{Email: addr, Link: s.link(addr, tok), TTL: s.ttl.String()})
	if err != nil {
		_ = s.cache.Delete(ctx, key)
		return fmt.Errorf("magiclink: render: %w", err)
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		// un link que nunca llegó no debe quedar canjeable
		_ = s.cache.Delete(ctx, key)
		return fmt.Errorf("magiclink: send: %w", err)
	}
	logger.From(ctx).Info("magic link issued", logger.Component("magiclink"), logger.EmailDomain(addr))
	return nil
}

// Redeem consume el token. Un token ya usado, vencido o de otra dirección es
// ErrInvalidCredential.
func (s *Service) Redeem(ctx context.Context, address, token string) (session.VerifiedIdentity, error) {
	if token == "" {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	addr, err := normalizeAddress(address)
	if err != nil {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}

	stored, err := s.cache.Take(ctx, keyPrefix+tokens.SHA256Base64URL(token))
	if cache.IsNotFound(err) {
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	if err != nil {
		return session.VerifiedIdentity{}, fmt.Errorf("magiclink: take token: %w", err)
	}
	if !tokens.ConstantTimeEqual(stored, addr) {
		// el token ya se consumió; quien lo robó para otra dirección lo quemó
		s.log.Warn("magic link redeemed for a different address", logger.EmailDomain(addr))
		return session.VerifiedIdentity{}, providers.ErrInvalidCredential
	}
	return session.VerifiedIdentity{Email: stored}, nil
}

func (s *Service) link(addr, tok string) string {
	u := *s.redeemURL
	q := u.Query()
	q.Set("email", addr)
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeAddress(address string) (string, error) {
	a, err := mail.ParseAddress(address)
	if err != nil || a.Name != "" {
		return "", ErrInvalidEmail
	}
	return repository.NormalizeEmail(a.Address), nil
}

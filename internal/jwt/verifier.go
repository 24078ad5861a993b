package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

// KeyProvider es lo que el Verifier necesita del cache de claves.
type KeyProvider interface {
	Get(ctx context.Context) (*KeySet, error)
	Invalidate()
}

// VerifierConfig valores esperados de los claims.
type VerifierConfig struct {
	Issuer   string
	Audience []string // basta con que el token incluya uno
	Now      func() time.Time
	Logger   *zap.Logger
}

// Verifier valida bearer tokens contra el KeySet del IdP. Sin estado por llamada:
// seguro para uso concurrente ilimitado.
type Verifier struct {
	keys     KeyProvider
	issuer   string
	audience []string
	now      func() time.Time
	log      *zap.Logger
	parser   *jwtv5.Parser
}

// NewVerifier crea un Verifier sobre keys (inyectado, nunca global).
func NewVerifier(keys KeyProvider, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("jwt: key provider is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwt: issuer is required")
	}
	if len(cfg.Audience) == 0 {
		return nil, errors.New("jwt: audience is required")
	}
	v := &Verifier{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: append([]string(nil), cfg.Audience...),
		now:      cfg.Now,
		log:      cfg.Logger,
		parser:   jwtv5.NewParser(),
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.log == nil {
		v.log = logger.Named("verifier")
	}
	return v, nil
}

// Verify valida raw y devuelve sus claims. Los errores son *VerificationError.
//
// Orden: estructura, exp, clave por kid (con un único invalidate+retry), firma,
// iss/aud. Un token vencido se rechaza como expired antes de mirar la firma.
func (v *Verifier) Verify(ctx context.Context, raw string) (*TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, verr(reason.Malformed, errors.New("empty token"))
	}

	mc := jwtv5.MapClaims{}
	tok, _, err := v.parser.ParseUnverified(raw, mc)
	if err != nil {
		return nil, verr(reason.Malformed, err)
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, verr(reason.Malformed, err)
	}
	if exp == nil {
		return nil, verr(reason.Malformed, errors.New("exp claim is required"))
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return nil, verr(reason.Malformed, err)
	}
	if sub == "" {
		return nil, verr(reason.Malformed, errors.New("sub claim is required"))
	}
	kid, ok := headerString(tok.Header, "kid")
	if !ok {
		return nil, verr(reason.Malformed, errors.New("kid header must be a string"))
	}

	// exp sin gracia
	if !v.now().Before(exp.Time) {
		return nil, verr(reason.Expired, fmt.Errorf("token expired at %s", exp.Time.UTC().Format(time.RFC3339)))
	}

	key, err := v.resolveKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	sigParser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{key.Algorithm}),
		jwtv5.WithoutClaimsValidation(),
	)
	if _, err := sigParser.Parse(raw, func(*jwtv5.Token) (any, error) { return key.PublicKey, nil }); err != nil {
		return nil, verr(reason.BadSignature, err)
	}

	iss, _ := mc.GetIssuer()
	if iss != v.issuer {
		return nil, verr(reason.ClaimMismatch, fmt.Errorf("unexpected issuer %q", iss))
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return nil, verr(reason.ClaimMismatch, err)
	}
	if !anyAudience(aud, v.audience) {
		return nil, verr(reason.ClaimMismatch, fmt.Errorf("audience %v not accepted", []string(aud)))
	}

	out := &TokenClaims{
		Subject:   sub,
		Issuer:    iss,
		Audience:  []string(aud),
		ExpiresAt: exp.Time,
		KeyID:     key.KeyID,
		Raw:       make(map[string]any, len(mc)),
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	for k, val := range mc {
		out.Raw[k] = val
	}
	return out, nil
}

// resolveKey busca kid; si no está, invalida una vez y reintenta una vez.
// Un token sin kid sólo se acepta si el KeySet tiene exactamente una clave.
func (v *Verifier) resolveKey(ctx context.Context, kid string) (SigningKey, error) {
	ks, err := v.keys.Get(ctx)
	if err != nil {
		return SigningKey{}, verr(reason.KeyFetchFailed, err)
	}
	if k, ok := lookup(ks, kid); ok {
		return k, nil
	}

	v.log.Info("unknown kid, invalidating key set", logger.KeyID(kid))
	v.keys.Invalidate()

	ks, err = v.keys.Get(ctx)
	if err != nil {
		return SigningKey{}, verr(reason.KeyFetchFailed, err)
	}
	if k, ok := lookup(ks, kid); ok {
		return k, nil
	}
	return SigningKey{}, verr(reason.UnknownKey, fmt.Errorf("kid %q not in key set", kid))
}

func lookup(ks *KeySet, kid string) (SigningKey, bool) {
	if k, ok := ks.Lookup(kid); ok {
		return k, true
	}
	if kid == "" && ks.Len() == 1 {
		return ks.Keys()[0], true
	}
	return SigningKey{}, false
}

func headerString(h map[string]any, name string) (string, bool) {
	raw, present := h[name]
	if !present {
		return "", true
	}
	s, ok := raw.(string)
	return s, ok
}

func anyAudience(got jwtv5.ClaimStrings, want []string) bool {
	for _, g := range got {
		for _, w := range want {
			if g == w {
				return true
			}
		}
	}
	return false
}

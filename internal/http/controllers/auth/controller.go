// Package auth contiene los controllers de sign-in, sesión y sign-out.
package auth

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/portalgate/internal/domain/repository"
	"github.com/dropDatabas3/portalgate/internal/http/dto"
	"github.com/dropDatabas3/portalgate/internal/http/errors"
	"github.com/dropDatabas3/portalgate/internal/http/helpers"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/providers/magiclink"
	"github.com/dropDatabas3/portalgate/internal/session"
)

// SessionService es lo que el controller usa del orquestador.
type SessionService interface {
	SignIn(ctx context.Context, cred session.Credential) (*session.Established, error)
	Resume(ctx context.Context, token string) (*repository.Session, error)
	SignOut(ctx context.Context, token string) error
	SessionTTL() time.Duration
}

// MagicLinkIssuer emite magic-links. nil deshabilita POST /auth/magic-link.
type MagicLinkIssuer interface {
	Issue(ctx context.Context, email string) error
}

type Controller struct {
	sessions SessionService
	magic    MagicLinkIssuer
	cookie   helpers.CookieConfig
}

func NewController(sessions SessionService, magic MagicLinkIssuer, cookie helpers.CookieConfig) *Controller {
	if cookie.Name == "" {
		cookie.Name = "portal_session"
	}
	return &Controller{sessions: sessions, magic: magic, cookie: cookie}
}

// MagicLinksEnabled reporta si hay emisor de magic-links.
func (c *Controller) MagicLinksEnabled() bool { return c.magic != nil }

// =================================================================================
// SIGN-IN
// =================================================================================

// RequestMagicLink maneja POST /auth/magic-link. Responde 202 sin revelar si
// la dirección está en el allow-list.
func (c *Controller) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Op("auth.RequestMagicLink"))

	var req dto.MagicLinkRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("email is required"))
		return
	}
	if c.magic == nil {
		errors.WriteError(w, errors.ErrNotFound)
		return
	}

	if err := c.magic.Issue(r.Context(), req.Email); err != nil {
		if stderrors.Is(err, magiclink.ErrInvalidEmail) {
			errors.WriteError(w, errors.ErrBadRequest.WithDetail("invalid email"))
			return
		}
		log.Error("magic link issue failed", logger.Err(err))
		errors.WriteError(w, errors.ErrServiceUnavailable)
		return
	}
	helpers.WriteJSON(w, http.StatusAccepted, dto.MagicLinkResponse{Status: "sent"})
}

// RedeemMagicLink maneja POST /auth/magic-link/redeem.
func (c *Controller) RedeemMagicLink(w http.ResponseWriter, r *http.Request) {
	var req dto.MagicLinkRedeemRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Token == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("email and token are required"))
		return
	}
	c.signIn(w, r, session.EmailLink{Email: req.Email, Token: req.Token, AttemptID: req.AttemptID})
}

// AdminLogin maneja POST /auth/admin/login.
func (c *Controller) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminLoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("username and password are required"))
		return
	}
	c.signIn(w, r, session.StaticCredential{Username: req.Username, Password: req.Password, AttemptID: req.AttemptID})
}

// SSOCallback maneja POST /auth/sso/callback con el ID token del proveedor.
func (c *Controller) SSOCallback(w http.ResponseWriter, r *http.Request) {
	var req dto.SSOCallbackRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.IDToken == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("id_token is required"))
		return
	}
	c.signIn(w, r, session.DelegatedSSO{Assertion: req.IDToken, AttemptID: req.AttemptID})
}

func (c *Controller) signIn(w http.ResponseWriter, r *http.Request, cred session.Credential) {
	est, err := c.sessions.SignIn(r.Context(), cred)
	if err != nil {
		if rej, ok := session.AsRejection(err); ok {
			errors.WriteError(w, errors.FromReason(rej.Reason))
			return
		}
		logger.From(r.Context()).Error("sign-in failed", logger.Op("auth.signIn"), logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError)
		return
	}

	http.SetCookie(w, helpers.BuildCookie(c.cookie, est.Token, c.sessions.SessionTTL()))
	resp := sessionResponse(&est.Session)
	resp.Token = est.Token
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// =================================================================================
// SESSION
// =================================================================================

// GetSession maneja GET /auth/session.
func (c *Controller) GetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := helpers.SessionToken(r, c.cookie.Name)
	if !ok {
		errors.WriteError(w, errors.ErrSessionInvalid)
		return
	}
	sess, err := c.sessions.Resume(r.Context(), token)
	if err != nil {
		c.writeSessionError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

// Logout maneja POST /auth/logout. Es idempotente: una sesión inexistente
// también responde 204.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := helpers.SessionToken(r, c.cookie.Name); ok {
		err := c.sessions.SignOut(r.Context(), token)
		if err != nil && !stderrors.Is(err, session.ErrSessionNotFound) {
			logger.From(r.Context()).Error("sign-out failed", logger.Op("auth.Logout"), logger.Err(err))
			errors.WriteError(w, errors.ErrInternalServerError)
			return
		}
	}
	http.SetCookie(w, helpers.BuildDeletionCookie(c.cookie))
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case stderrors.Is(err, session.ErrSessionExpired):
		http.SetCookie(w, helpers.BuildDeletionCookie(c.cookie))
		errors.WriteError(w, errors.ErrSessionExpired)
	case stderrors.Is(err, session.ErrSessionNotFound):
		http.SetCookie(w, helpers.BuildDeletionCookie(c.cookie))
		errors.WriteError(w, errors.ErrSessionInvalid)
	default:
		logger.From(r.Context()).Error("resume failed", logger.Op("auth.GetSession"), logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError)
	}
}

func sessionResponse(s *repository.Session) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID: s.ID,
		Label:     s.Label,
		Email:     s.IdentityEmail,
		Strategy:  string(s.Strategy),
		ExpiresAt: s.ExpiresAt,
	}
}

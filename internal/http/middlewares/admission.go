package middlewares

import (
	"net/http"
	"net/url"

	"github.com/dropDatabas3/portalgate/internal/admission"
	"github.com/dropDatabas3/portalgate/internal/domain/reason"
	"github.com/dropDatabas3/portalgate/internal/http/errors"
)

// Admitter decide la admisión de un request (implementado por admission.Gate).
type Admitter interface {
	Admit(r *http.Request) admission.Decision
}

// RequireAdmission protege una ruta con el gate de admisión.
//
//   - allow: los claims quedan en el contexto (GetClaims).
//   - redirect_to_auth: 302 a signInURL con return_to = ruta original.
//   - reject: 401 JSON con el código de rechazo (503 si no hay claves del IdP).
func RequireAdmission(gate Admitter, signInURL string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Admit(r)
			switch d.Outcome {
			case admission.Allow:
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), d.Claims)))
			case admission.RedirectToAuth:
				http.Redirect(w, r, signInRedirect(signInURL, r.URL.RequestURI()), http.StatusFound)
			default:
				writeRejection(w, d.Reason)
			}
		})
	}
}

func writeRejection(w http.ResponseWriter, code reason.Code) {
	switch code {
	case reason.MissingToken:
		w.Header().Set("WWW-Authenticate", `Bearer realm="portalgate"`)
	case reason.KeyFetchFailed:
		errors.WriteError(w, errors.ErrServiceUnavailable.WithReason(code).WithMessage(reason.UserMessage(code)))
		return
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="portalgate", error="invalid_token"`)
	}
	errors.WriteError(w, errors.ErrUnauthorized.WithReason(code).WithMessage(reason.UserMessage(code)))
}

// signInRedirect agrega return_to preservando la query existente de signInURL.
func signInRedirect(signInURL, returnTo string) string {
	u, err := url.Parse(signInURL)
	if err != nil {
		return signInURL
	}
	q := u.Query()
	q.Set("return_to", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}

// Package api contiene las rutas protegidas por el gate de admisión.
package api

import (
	"net/http"

	"github.com/dropDatabas3/portalgate/internal/http/dto"
	"github.com/dropDatabas3/portalgate/internal/http/errors"
	"github.com/dropDatabas3/portalgate/internal/http/helpers"
	mw "github.com/dropDatabas3/portalgate/internal/http/middlewares"
)

// WhoAmI maneja GET /api/whoami: devuelve los claims que admitió el gate.
func WhoAmI(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetClaims(r.Context())
	if claims == nil {
		// la ruta se montó sin RequireAdmission
		errors.WriteError(w, errors.ErrInternalServerError)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.WhoAmIResponse{
		Subject:   claims.Subject,
		Email:     claims.Email(),
		Issuer:    claims.Issuer,
		KeyID:     claims.KeyID,
		ExpiresAt: claims.ExpiresAt,
	})
}

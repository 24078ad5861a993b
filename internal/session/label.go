package session

import "strings"

// LabelFromEmail devuelve la parte local del email (antes de la última @).
// Es el identificador visible de la sesión para el gate y la UI.
func LabelFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

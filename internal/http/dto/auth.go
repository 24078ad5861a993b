// Package dto define los cuerpos JSON de la API.
package dto

import "time"

// =================================================================================
// REQUESTS
// =================================================================================

type MagicLinkRequest struct {
	Email string `json:"email"`
}

type MagicLinkRedeemRequest struct {
	Email     string `json:"email"`
	Token     string `json:"token"`
	AttemptID string `json:"attempt_id,omitempty"`
}

type AdminLoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AttemptID string `json:"attempt_id,omitempty"`
}

type SSOCallbackRequest struct {
	IDToken   string `json:"id_token"`
	AttemptID string `json:"attempt_id,omitempty"`
}

// =================================================================================
// RESPONSES
// =================================================================================

type MagicLinkResponse struct {
	Status string `json:"status"`
}

// SessionResponse describe una sesión establecida o reanudada. Token sólo viaja
// en el sign-in.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Label     string    `json:"label"`
	Email     string    `json:"email"`
	Strategy  string    `json:"strategy"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token,omitempty"`
}

type WhoAmIResponse struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Issuer    string    `json:"iss"`
	KeyID     string    `json:"kid,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

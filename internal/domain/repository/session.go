package repository

import (
	"context"
	"fmt"
	"time"
)

// Strategy es cómo se entrega la sesión al cliente.
type Strategy string

const (
	// StrategyStored: el cliente recibe el session ID opaco.
	StrategyStored Strategy = "stored"
	// StrategyStatelessSigned: el cliente recibe un JWT firmado; la fila sigue
	// existiendo para que el sign-out sea efectivo.
	StrategyStatelessSigned Strategy = "stateless-signed"
)

// Session es una sesión establecida.
type Session struct {
	ID            string
	IdentityEmail string
	Label         string
	Strategy      Strategy
	AttemptID     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reporta si la sesión venció en now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Validate chequea los campos obligatorios.
func (s Session) Validate() error {
	if s.ID == "" || s.IdentityEmail == "" {
		return fmt.Errorf("%w: session id and identity are required", ErrInvalidInput)
	}
	switch s.Strategy {
	case StrategyStored, StrategyStatelessSigned:
	default:
		return fmt.Errorf("%w: session strategy %q", ErrInvalidInput, s.Strategy)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("%w: session expires before it is created", ErrInvalidInput)
	}
	return nil
}

// SessionRepository operaciones sobre sesiones.
type SessionRepository interface {
	// CreateSession inserta create-if-absent. ErrConflict si el ID ya existe;
	// ErrInvalidInput si la identidad no existe o no está aprobada.
	CreateSession(ctx context.Context, s Session) error

	// FindSession busca por ID. ErrNotFound si no existe.
	FindSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession elimina por ID. ErrNotFound si no existía.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpired elimina sesiones vencidas a now y retorna cuántas.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Store es el adapter completo que consume el orquestador.
type Store interface {
	IdentityRepository
	SessionRepository

	// Establish hace upsert de la identidad (aprobada) e inserta la sesión en una
	// sola transacción. Si la sesión ya existe devuelve ErrConflict y no deja
	// cambios en la identidad.
	Establish(ctx context.Context, id Identity, s Session) error

	Ping(ctx context.Context) error
	Close() error
}

// ValidateEstablish aplica las reglas comunes a todos los adapters.
func ValidateEstablish(id Identity, s Session) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if !id.AllowListApproved {
		return fmt.Errorf("%w: identity %q is not allow-list approved", ErrInvalidInput, id.Email)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.IdentityEmail != id.Email {
		return fmt.Errorf("%w: session identity mismatch", ErrInvalidInput)
	}
	return nil
}
